package storage

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"contact_harvest/egresspool/model"
	"contact_harvest/internal/shared/logger"
)

const (
	delimiter = "|"
	numFields = 2 // Address|BlockedAtUnix
)

// Blocklist 接口定义了被封锁出口的持久化行为。写入必须在返回前落盘。
type Blocklist interface {
	Load(ctx context.Context) (map[string]time.Time, error)
	Add(ctx context.Context, address string, at time.Time) error
}

// FileBlocklist 实现了 Blocklist 接口，使用追加写入的纯文本文件进行持久化。
type FileBlocklist struct {
	filePath string
	mu       sync.Mutex
	log      zerolog.Logger
}

// NewFileBlocklist 创建一个新的 FileBlocklist 实例。
func NewFileBlocklist(filePath string) *FileBlocklist {
	return &FileBlocklist{
		filePath: filePath,
		log:      logger.WithComponent("EgressPool/Blocklist"),
	}
}

// Load 读取所有黑名单条目；同一地址出现多次时保留最早的时间。
func (fs *FileBlocklist) Load(_ context.Context) (map[string]time.Time, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	file, err := os.Open(fs.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			fs.log.Info().Str("path", fs.filePath).Msg("Blocklist file not found, starting with an empty blocklist.")
			return make(map[string]time.Time), nil
		}
		return nil, err
	}
	defer file.Close()

	blocked := make(map[string]time.Time)
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Split(line, delimiter)
		if len(fields) != numFields {
			fs.log.Warn().Int("line", lineNum).Int("expected", numFields).Int("got", len(fields)).Msg("Skipping malformed line in blocklist file.")
			continue
		}
		unix, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			fs.log.Warn().Int("line", lineNum).Err(err).Msg("Invalid timestamp in blocklist file, skipping.")
			continue
		}
		at := time.Unix(unix, 0).UTC()
		if prev, ok := blocked[fields[0]]; !ok || at.Before(prev) {
			blocked[fields[0]] = at
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	fs.log.Info().Int("count", len(blocked)).Msg("Loaded blocklist from file.")
	return blocked, nil
}

// Add 追加一条黑名单记录并 fsync。
func (fs *FileBlocklist) Add(_ context.Context, address string, at time.Time) error {
	if strings.Contains(address, delimiter) {
		return fmt.Errorf("address %q contains delimiter", address)
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(fs.filePath), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(fs.filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	line := address + delimiter + strconv.FormatInt(at.Unix(), 10) + "\n"
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadCandidates 读取候选出口列表文件，跳过空行与 # 注释行。
func ReadCandidates(filePath string) ([]model.Endpoint, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open candidates file: %w", err)
	}
	defer file.Close()

	l := logger.WithComponent("EgressPool/Candidates")
	var endpoints []model.Endpoint
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ep, err := model.ParseEndpoint(line)
		if err != nil {
			l.Warn().Int("line", lineNum).Err(err).Msg("Skipping invalid candidate endpoint.")
			continue
		}
		endpoints = append(endpoints, ep)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return endpoints, nil
}
