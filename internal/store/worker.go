package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	stdatomic "sync/atomic"
	"time"

	"github.com/gideonlabs/gideon/internal/config"

	"github.com/natefinch/atomic"
)

type Operation int

const (
	OpGetConversation Operation = iota
	OpAppendMessage
	OpClearConversation
	OpListNotebooks
	OpLogActivity
	OpRecentActivity
	OpGetProgress
	OpSaveTopicProgress
	OpGetExtensions
	OpAddResource
	OpAddCodeExample
	OpListLessons
	OpAddLesson
)

type Request struct {
	Op       Operation
	Payload  interface{}
	Result   chan error
	Response chan interface{}
}

type conversationPayload struct {
	TopicID string
}

type appendMessagePayload struct {
	TopicID string
	Message Message
}

type topicProgressPayload struct {
	TopicID  string
	Progress TopicProgress
}

type listLessonsPayload struct {
	TopicID string // empty = all
}

// Worker owns all file I/O for the data directory. Every operation funnels
// through a single goroutine fed by the inbox channel, so reads and
// read-modify-write cycles never interleave.
type Worker struct {
	basePath      string
	inbox         chan Request
	fileLock      *FileLock
	quit          chan struct{}
	wg            sync.WaitGroup
	running       stdatomic.Bool
	activityLimit int
}

type RuntimeConfig struct {
	LockTimeout      time.Duration
	LockRetry        time.Duration
	LockMaxRetry     int
	InboxSize        int
	ActivityLogLimit int
}

func NewWorker(dataPath string, runtimeCfg RuntimeConfig) (*Worker, error) {
	if dataPath == "" {
		return nil, fmt.Errorf("data path is empty")
	}

	if err := os.MkdirAll(filepath.Join(dataPath, "notebooks"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	if runtimeCfg.LockTimeout <= 0 {
		lockTimeout, err := config.DurationOrDefault("", config.DefaultStoreLockTimeout)
		if err != nil {
			return nil, fmt.Errorf("parse default store lock timeout: %w", err)
		}
		runtimeCfg.LockTimeout = lockTimeout
	}
	if runtimeCfg.LockRetry <= 0 {
		lockRetry, err := config.DurationOrDefault("", config.DefaultStoreLockRetry)
		if err != nil {
			return nil, fmt.Errorf("parse default store lock retry: %w", err)
		}
		runtimeCfg.LockRetry = lockRetry
	}
	if runtimeCfg.LockMaxRetry <= 0 {
		runtimeCfg.LockMaxRetry = config.DefaultStoreLockMaxRetry
	}
	if runtimeCfg.InboxSize <= 0 {
		runtimeCfg.InboxSize = config.DefaultStoreInboxSize
	}
	if runtimeCfg.ActivityLogLimit <= 0 {
		runtimeCfg.ActivityLogLimit = config.DefaultStoreActivityLogLimit
	}

	fileLock, err := NewFileLock(dataPath, FileLockConfig{
		LockTimeout:  runtimeCfg.LockTimeout,
		LockRetry:    runtimeCfg.LockRetry,
		LockMaxRetry: runtimeCfg.LockMaxRetry,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	return &Worker{
		basePath:      dataPath,
		inbox:         make(chan Request, runtimeCfg.InboxSize),
		fileLock:      fileLock,
		quit:          make(chan struct{}),
		activityLimit: runtimeCfg.ActivityLogLimit,
	}, nil
}

func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

func (w *Worker) loop() {
	slog.Info("StoreWorker started", "path", w.basePath)
	w.running.Store(true)
	defer func() {
		w.running.Store(false)
		w.wg.Done()
	}()

	for {
		select {
		case req := <-w.inbox:
			err := w.handle(req)
			if req.Result != nil {
				req.Result <- err
			}
		case <-w.quit:
			slog.Info("StoreWorker stopping")
			return
		}
	}
}

func (w *Worker) handle(req Request) error {
	switch req.Op {
	case OpGetConversation:
		p, ok := req.Payload.(conversationPayload)
		if !ok {
			return fmt.Errorf("invalid payload for GetConversation")
		}
		conv, err := w.readConversation(p.TopicID)
		if req.Response != nil {
			req.Response <- conv
		}
		return err
	case OpAppendMessage:
		p, ok := req.Payload.(appendMessagePayload)
		if !ok {
			return fmt.Errorf("invalid payload for AppendMessage")
		}
		conv, err := w.appendMessage(p.TopicID, p.Message)
		if req.Response != nil {
			req.Response <- conv
		}
		return err
	case OpClearConversation:
		p, ok := req.Payload.(conversationPayload)
		if !ok {
			return fmt.Errorf("invalid payload for ClearConversation")
		}
		return w.clearConversation(p.TopicID)
	case OpListNotebooks:
		summaries, err := w.listNotebooks()
		if req.Response != nil {
			req.Response <- summaries
		}
		return err
	case OpLogActivity:
		p, ok := req.Payload.(ActivityEntry)
		if !ok {
			return fmt.Errorf("invalid payload for LogActivity")
		}
		return w.logActivity(p)
	case OpRecentActivity:
		entries, err := w.recentActivity()
		if req.Response != nil {
			req.Response <- entries
		}
		return err
	case OpGetProgress:
		progress, err := w.readProgress()
		if req.Response != nil {
			req.Response <- progress
		}
		return err
	case OpSaveTopicProgress:
		p, ok := req.Payload.(topicProgressPayload)
		if !ok {
			return fmt.Errorf("invalid payload for SaveTopicProgress")
		}
		return w.saveTopicProgress(p.TopicID, p.Progress)
	case OpGetExtensions:
		ext, err := w.readExtensions()
		if req.Response != nil {
			req.Response <- ext
		}
		return err
	case OpAddResource:
		p, ok := req.Payload.(Resource)
		if !ok {
			return fmt.Errorf("invalid payload for AddResource")
		}
		return w.addResource(p)
	case OpAddCodeExample:
		p, ok := req.Payload.(CodeExample)
		if !ok {
			return fmt.Errorf("invalid payload for AddCodeExample")
		}
		return w.addCodeExample(p)
	case OpListLessons:
		p, ok := req.Payload.(listLessonsPayload)
		if !ok {
			return fmt.Errorf("invalid payload for ListLessons")
		}
		lessons, err := w.listLessons(p.TopicID)
		if req.Response != nil {
			req.Response <- lessons
		}
		return err
	case OpAddLesson:
		p, ok := req.Payload.(Lesson)
		if !ok {
			return fmt.Errorf("invalid payload for AddLesson")
		}
		return w.addLesson(p)
	default:
		return fmt.Errorf("unknown operation: %d", req.Op)
	}
}

// --- file primitives ---

func (w *Worker) readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, v)
}

func (w *Worker) writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(path, bytes.NewReader(data))
}

func (w *Worker) notebookPath(topicID string) string {
	return filepath.Join(w.basePath, "notebooks", topicID+".json")
}

// --- notebooks ---

func (w *Worker) readConversation(topicID string) (*Conversation, error) {
	conv := &Conversation{TopicID: topicID, Messages: []Message{}}
	if err := w.readJSON(w.notebookPath(topicID), conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (w *Worker) appendMessage(topicID string, msg Message) (*Conversation, error) {
	conv, err := w.readConversation(topicID)
	if err != nil {
		return nil, err
	}

	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = time.Now()

	if err := w.writeJSON(w.notebookPath(topicID), conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (w *Worker) clearConversation(topicID string) error {
	if err := os.Remove(w.notebookPath(topicID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (w *Worker) listNotebooks() ([]NotebookSummary, error) {
	entries, err := os.ReadDir(filepath.Join(w.basePath, "notebooks"))
	if err != nil {
		if os.IsNotExist(err) {
			return []NotebookSummary{}, nil
		}
		return nil, err
	}

	summaries := make([]NotebookSummary, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		topicID := strings.TrimSuffix(entry.Name(), ".json")
		conv, err := w.readConversation(topicID)
		if err != nil {
			slog.Warn("Skipping unreadable notebook", "topic", topicID, "error", err)
			continue
		}
		summaries = append(summaries, NotebookSummary{
			TopicID:      topicID,
			MessageCount: len(conv.Messages),
			LastUpdated:  conv.UpdatedAt,
		})
	}
	return summaries, nil
}

// --- activity log ---

func (w *Worker) logActivity(entry ActivityEntry) error {
	path := filepath.Join(w.basePath, "activity.json")

	var entries []ActivityEntry
	if err := w.readJSON(path, &entries); err != nil {
		return err
	}

	entries = append(entries, entry)
	if len(entries) > w.activityLimit {
		entries = entries[len(entries)-w.activityLimit:]
	}
	return w.writeJSON(path, entries)
}

func (w *Worker) recentActivity() ([]ActivityEntry, error) {
	var entries []ActivityEntry
	if err := w.readJSON(filepath.Join(w.basePath, "activity.json"), &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []ActivityEntry{}
	}
	return entries, nil
}

// --- progress ---

func (w *Worker) readProgress() (*Progress, error) {
	progress := &Progress{Topics: map[string]TopicProgress{}}
	if err := w.readJSON(filepath.Join(w.basePath, "progress.json"), progress); err != nil {
		return nil, err
	}
	if progress.Topics == nil {
		progress.Topics = map[string]TopicProgress{}
	}
	return progress, nil
}

func (w *Worker) saveTopicProgress(topicID string, tp TopicProgress) error {
	progress, err := w.readProgress()
	if err != nil {
		return err
	}
	progress.Topics[topicID] = tp
	return w.writeJSON(filepath.Join(w.basePath, "progress.json"), progress)
}

// --- extensions ---

func (w *Worker) readExtensions() (*Extensions, error) {
	ext := &Extensions{Resources: []Resource{}, CodeExamples: []CodeExample{}}
	if err := w.readJSON(filepath.Join(w.basePath, "extensions.json"), ext); err != nil {
		return nil, err
	}
	return ext, nil
}

func (w *Worker) addResource(r Resource) error {
	ext, err := w.readExtensions()
	if err != nil {
		return err
	}
	ext.Resources = append(ext.Resources, r)
	return w.writeJSON(filepath.Join(w.basePath, "extensions.json"), ext)
}

func (w *Worker) addCodeExample(c CodeExample) error {
	ext, err := w.readExtensions()
	if err != nil {
		return err
	}
	ext.CodeExamples = append(ext.CodeExamples, c)
	return w.writeJSON(filepath.Join(w.basePath, "extensions.json"), ext)
}

// --- lessons ---

func (w *Worker) listLessons(topicID string) ([]Lesson, error) {
	var lessons []Lesson
	if err := w.readJSON(filepath.Join(w.basePath, "lessons.json"), &lessons); err != nil {
		return nil, err
	}
	if topicID == "" {
		if lessons == nil {
			lessons = []Lesson{}
		}
		return lessons, nil
	}

	filtered := make([]Lesson, 0, len(lessons))
	for _, l := range lessons {
		if l.TopicID == topicID {
			filtered = append(filtered, l)
		}
	}
	return filtered, nil
}

func (w *Worker) addLesson(l Lesson) error {
	lessons, err := w.listLessons("")
	if err != nil {
		return err
	}
	lessons = append(lessons, l)
	return w.writeJSON(filepath.Join(w.basePath, "lessons.json"), lessons)
}

// --- public API ---

func (w *Worker) GetConversation(topicID string) (*Conversation, error) {
	res := make(chan error, 1)
	resp := make(chan interface{}, 1)
	w.inbox <- Request{
		Op:       OpGetConversation,
		Payload:  conversationPayload{TopicID: topicID},
		Result:   res,
		Response: resp,
	}
	if err := <-res; err != nil {
		return nil, err
	}
	return (<-resp).(*Conversation), nil
}

func (w *Worker) AppendMessage(topicID string, msg Message) (*Conversation, error) {
	res := make(chan error, 1)
	resp := make(chan interface{}, 1)
	w.inbox <- Request{
		Op:       OpAppendMessage,
		Payload:  appendMessagePayload{TopicID: topicID, Message: msg},
		Result:   res,
		Response: resp,
	}
	if err := <-res; err != nil {
		return nil, err
	}
	return (<-resp).(*Conversation), nil
}

func (w *Worker) ClearConversation(topicID string) error {
	res := make(chan error, 1)
	w.inbox <- Request{
		Op:      OpClearConversation,
		Payload: conversationPayload{TopicID: topicID},
		Result:  res,
	}
	return <-res
}

func (w *Worker) ListNotebooks() ([]NotebookSummary, error) {
	res := make(chan error, 1)
	resp := make(chan interface{}, 1)
	w.inbox <- Request{Op: OpListNotebooks, Result: res, Response: resp}
	if err := <-res; err != nil {
		return nil, err
	}
	return (<-resp).([]NotebookSummary), nil
}

func (w *Worker) LogActivity(entry ActivityEntry) error {
	res := make(chan error, 1)
	w.inbox <- Request{Op: OpLogActivity, Payload: entry, Result: res}
	return <-res
}

func (w *Worker) RecentActivity() ([]ActivityEntry, error) {
	res := make(chan error, 1)
	resp := make(chan interface{}, 1)
	w.inbox <- Request{Op: OpRecentActivity, Result: res, Response: resp}
	if err := <-res; err != nil {
		return nil, err
	}
	return (<-resp).([]ActivityEntry), nil
}

func (w *Worker) GetProgress() (*Progress, error) {
	res := make(chan error, 1)
	resp := make(chan interface{}, 1)
	w.inbox <- Request{Op: OpGetProgress, Result: res, Response: resp}
	if err := <-res; err != nil {
		return nil, err
	}
	return (<-resp).(*Progress), nil
}

func (w *Worker) SaveTopicProgress(topicID string, tp TopicProgress) error {
	res := make(chan error, 1)
	w.inbox <- Request{
		Op:      OpSaveTopicProgress,
		Payload: topicProgressPayload{TopicID: topicID, Progress: tp},
		Result:  res,
	}
	return <-res
}

func (w *Worker) GetExtensions() (*Extensions, error) {
	res := make(chan error, 1)
	resp := make(chan interface{}, 1)
	w.inbox <- Request{Op: OpGetExtensions, Result: res, Response: resp}
	if err := <-res; err != nil {
		return nil, err
	}
	return (<-resp).(*Extensions), nil
}

func (w *Worker) AddResource(r Resource) error {
	res := make(chan error, 1)
	w.inbox <- Request{Op: OpAddResource, Payload: r, Result: res}
	return <-res
}

func (w *Worker) AddCodeExample(c CodeExample) error {
	res := make(chan error, 1)
	w.inbox <- Request{Op: OpAddCodeExample, Payload: c, Result: res}
	return <-res
}

func (w *Worker) ListLessons(topicID string) ([]Lesson, error) {
	res := make(chan error, 1)
	resp := make(chan interface{}, 1)
	w.inbox <- Request{
		Op:       OpListLessons,
		Payload:  listLessonsPayload{TopicID: topicID},
		Result:   res,
		Response: resp,
	}
	if err := <-res; err != nil {
		return nil, err
	}
	return (<-resp).([]Lesson), nil
}

func (w *Worker) AddLesson(l Lesson) error {
	res := make(chan error, 1)
	w.inbox <- Request{Op: OpAddLesson, Payload: l, Result: res}
	return <-res
}

func (w *Worker) Stop() {
	close(w.quit)
	w.wg.Wait()

	if w.fileLock.IsLocked() {
		w.fileLock.Unlock()
	}
}

func (w *Worker) IsRunning() bool {
	return w.fileLock.IsLocked() && w.running.Load()
}
