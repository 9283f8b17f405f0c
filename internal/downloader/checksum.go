package downloader

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// fileMD5 returns the lowercase hex MD5 of a file
func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// verifyChecksum reports whether the file at path hashes to expected
func verifyChecksum(path, expected string) (bool, error) {
	sum, err := fileMD5(path)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(sum, expected), nil
}
