package codec

import (
	"bufio"
	"os"
	"path/filepath"
	"sync"
)

// WriterConfig holds configuration for the log writer.
type WriterConfig struct {
	FilePath   string // path to the log file being written
	BufferSize int    // write buffer size; 0 uses bufio's default
}

// Writer appends records to a survey log file. It is used to generate
// synthetic logs for testing and benchmarking; the decoder core itself
// never writes.
type Writer struct {
	file   *os.File
	writer *bufio.Writer
	codec  *RecordCodec
	config WriterConfig
	mutex  sync.Mutex
	offset int64 // current write offset
}

// NewWriter creates a log writer for the codec's format at the configured
// path, appending if the file already exists.
func NewWriter(c *RecordCodec, config WriterConfig) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(config.FilePath), 0750); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	bw := bufio.NewWriter(file)
	if config.BufferSize > 0 {
		bw = bufio.NewWriterSize(file, config.BufferSize)
	}

	return &Writer{
		file:   file,
		writer: bw,
		codec:  c,
		config: config,
		offset: stat.Size(),
	}, nil
}

// Append encodes and writes one record, returning the offset its sync
// marker was written at.
func (w *Writer) Append(recType, channel uint16, payload []byte) (int64, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	data, err := w.codec.Encode(recType, channel, payload)
	if err != nil {
		return 0, err
	}

	n, err := w.writer.Write(data)
	if err != nil {
		return 0, err
	}

	recordOffset := w.offset
	w.offset += int64(n)
	return recordOffset, nil
}

// AppendRaw writes arbitrary bytes without encoding. Tests use this to
// interleave garbage and padding between records.
func (w *Writer) AppendRaw(data []byte) (int64, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	n, err := w.writer.Write(data)
	if err != nil {
		return 0, err
	}

	rawOffset := w.offset
	w.offset += int64(n)
	return rawOffset, nil
}

// Size returns the current size of the log file, buffered bytes included.
func (w *Writer) Size() int64 {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.offset
}

// Path returns the file path.
func (w *Writer) Path() string {
	return w.config.FilePath
}

// Close flushes buffered writes and closes the file.
func (w *Writer) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
