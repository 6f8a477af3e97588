package database

import (
	"fmt"
	"time"

	"torrent-monitor/app/model"

	"gorm.io/gorm"
)

// BaseTopicUpgrade 把独立的 tracker 表提升为继承 topics 基础表的扩展表
type BaseTopicUpgrade struct {
	OldTable string            // 旧的独立表
	NewModel any               // 新的扩展表模型，表名取自模型
	Type     string            // 写入 topics.type 的判别值
	Renames  map[string]string // 旧列名 -> 新列名
	Status   model.TopicStatus // 迁移后订阅的状态，默认 ok
}

// 基础表中的列，其余列写入扩展表
var baseTopicColumns = map[string]bool{
	"display_name": true,
	"url":          true,
	"last_update":  true,
	"status":       true,
	"paused":       true,
	"download_dir": true,
}

// UpgradeToBaseTopic 以新结构建立临时表，逐行写入 topics 与临时表，删除旧表后把临时表改名
// 必须在事务中调用
func UpgradeToBaseTopic(tx *gorm.DB, up BaseTopicUpgrade) error {
	stmt := &gorm.Statement{DB: tx}
	if err := stmt.Parse(up.NewModel); err != nil {
		return fmt.Errorf("解析新表模型失败: %w", err)
	}
	newTable := stmt.Schema.Table
	tmpTable := newTable + "_upgrade"

	var rows []map[string]any
	if err := tx.Table(up.OldTable).Order("id").Find(&rows).Error; err != nil {
		return fmt.Errorf("读取旧表 %s 失败: %w", up.OldTable, err)
	}

	if err := tx.Table(tmpTable).Migrator().CreateTable(up.NewModel); err != nil {
		return fmt.Errorf("创建临时表 %s 失败: %w", tmpTable, err)
	}

	status := up.Status
	if status == "" {
		status = model.TopicStatusOk
	}

	for _, row := range rows {
		row = renameColumns(row, up.Renames)

		base, err := baseTopicFromRow(row, up.Type, status)
		if err != nil {
			return err
		}
		if err := tx.Create(base).Error; err != nil {
			return fmt.Errorf("写入基础表失败 (%s): %w", base.URL, err)
		}

		concrete := map[string]any{"id": base.ID}
		for column, value := range row {
			if column == "id" || baseTopicColumns[column] {
				continue
			}
			if _, ok := stmt.Schema.FieldsByDBName[column]; !ok {
				continue
			}
			concrete[column] = value
		}
		if err := tx.Table(tmpTable).Create(concrete).Error; err != nil {
			return fmt.Errorf("写入 %s 失败 (%s): %w", tmpTable, base.URL, err)
		}
	}

	if err := tx.Migrator().DropTable(up.OldTable); err != nil {
		return fmt.Errorf("删除旧表 %s 失败: %w", up.OldTable, err)
	}
	if err := tx.Migrator().RenameTable(tmpTable, newTable); err != nil {
		return fmt.Errorf("重命名 %s 失败: %w", tmpTable, err)
	}
	return nil
}

func renameColumns(row map[string]any, renames map[string]string) map[string]any {
	if len(renames) == 0 {
		return row
	}
	out := make(map[string]any, len(row))
	for column, value := range row {
		if renamed, ok := renames[column]; ok {
			column = renamed
		}
		out[column] = value
	}
	return out
}

func baseTopicFromRow(row map[string]any, topicType string, status model.TopicStatus) (*model.Topic, error) {
	displayName, _ := asString(row["display_name"])
	url, _ := asString(row["url"])
	if url == "" {
		return nil, fmt.Errorf("旧记录缺少 url: %v", row["id"])
	}
	if displayName == "" {
		displayName = url
	}

	base := &model.Topic{
		DisplayName: displayName,
		URL:         url,
		Type:        topicType,
		Status:      status,
	}
	if s, ok := asString(row["status"]); ok {
		if parsed, err := model.ParseTopicStatus(s); err == nil {
			base.Status = parsed
		}
	}
	if paused, ok := row["paused"].(bool); ok {
		base.Paused = paused
	}
	if dir, ok := asString(row["download_dir"]); ok && dir != "" {
		base.DownloadDir = &dir
	}
	lastUpdate, err := asTime(row["last_update"])
	if err != nil {
		return nil, err
	}
	base.LastUpdate = lastUpdate
	return base, nil
}

func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}
	return "", false
}

// sqlite 按声明类型返回 time.Time 或字符串
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func asTime(v any) (*time.Time, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return &t, nil
	case *time.Time:
		return t, nil
	}
	s, ok := asString(v)
	if !ok || s == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return &parsed, nil
		}
	}
	return nil, fmt.Errorf("无法解析时间: %q", s)
}
