package logging

import (
	"fmt"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

// AsyncFile provides non-blocking file writing capabilities
type AsyncFile struct {
	file    *os.File
	queue   chan []byte
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
	log     log.Logger
}

// NewAsyncFile creates the file at path, truncating it if it exists
func NewAsyncFile(path string, logger log.Logger) (*AsyncFile, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", path, err)
	}
	if logger == nil {
		logger = log.New()
	}

	af := &AsyncFile{
		file:  file,
		queue: make(chan []byte, 100),
		log:   logger,
	}

	af.wg.Add(1)
	go af.processQueue()

	return af, nil
}

// Write queues data to be written asynchronously
func (af *AsyncFile) Write(data []byte) error {
	af.mu.Lock()
	defer af.mu.Unlock()

	if af.stopped {
		return fmt.Errorf("async file %s is closed", af.file.Name())
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	af.queue <- dataCopy
	return nil
}

func (af *AsyncFile) processQueue() {
	defer af.wg.Done()

	for data := range af.queue {
		if _, err := af.file.Write(data); err != nil {
			af.log.Error("Failed to write log file", "path", af.file.Name(), "err", err)
		}
	}
}

// Close drains the queue and closes the file. It is safe to call twice.
func (af *AsyncFile) Close() error {
	af.mu.Lock()
	if af.stopped {
		af.mu.Unlock()
		return nil
	}
	af.stopped = true
	close(af.queue)
	af.mu.Unlock()

	af.wg.Wait()
	return af.file.Close()
}
