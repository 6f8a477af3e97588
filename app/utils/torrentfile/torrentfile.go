package torrentfile

import (
	"bytes"
	"fmt"

	"github.com/anacrolix/torrent/metainfo"
)

// File 解析后的 .torrent 文件
type File struct {
	Raw      []byte // 原始内容，直接交给下载客户端
	InfoHash string // 小写十六进制 info-hash
	Name     string // info 字典中的名称
}

// Parse 解析 .torrent 原始内容并计算 info-hash
func Parse(raw []byte) (*File, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("种子内容为空")
	}

	mi, err := metainfo.Load(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("解析种子文件失败: %w", err)
	}

	info, err := mi.UnmarshalInfo()
	if err != nil {
		return nil, fmt.Errorf("解析种子 info 字典失败: %w", err)
	}

	return &File{
		Raw:      raw,
		InfoHash: mi.HashInfoBytes().HexString(),
		Name:     info.Name,
	}, nil
}
