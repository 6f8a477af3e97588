package cmd

import (
	"strconv"
	"strings"

	"torrent-monitor/app/config"
	"torrent-monitor/app/logger"

	"github.com/spf13/cobra"
)

var executeIDs string

var executeCmd = &cobra.Command{
	Use:   "execute",
	Short: "立即执行一次检查后退出",
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDList(executeIDs)
		if err != nil {
			return err
		}

		cfg := config.Load()
		log := logger.New(cfg.Log)
		defer log.Close()

		app, err := newApplication(cfg, log)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.engine.Execute(ids); err != nil {
			log.Errorf("执行失败: %v", err)
			return err
		}
		log.Info("执行完成")
		return nil
	},
}

// parseIDList 解析逗号分隔的订阅 id
func parseIDList(s string) ([]uint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var ids []uint
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

func init() {
	executeCmd.Flags().StringVar(&executeIDs, "ids", "", "只检查这些订阅，逗号分隔")
	rootCmd.AddCommand(executeCmd)
}
