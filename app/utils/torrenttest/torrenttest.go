// Package torrenttest 生成测试用的最小 .torrent 内容
package torrenttest

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
)

func info(name string) string {
	pieces := strings.Repeat("x", 20)
	return fmt.Sprintf("d6:lengthi5e4:name%d:%s12:piece lengthi16384e6:pieces20:%se", len(name), name, pieces)
}

// New 返回单文件种子的 bencode 内容，不同名称得到不同 info-hash
func New(name string) []byte {
	return []byte("d8:announce18:http://tracker/ann4:info" + info(name) + "e")
}

// Hash 返回 New(name) 对应的小写 info-hash
func Hash(name string) string {
	sum := sha1.Sum([]byte(info(name)))
	return hex.EncodeToString(sum[:])
}
