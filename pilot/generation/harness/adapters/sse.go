package adapters

import (
	"bufio"
	"io"
	"strings"
)

// sseEvent is one Server-Sent Event. Multiple data lines are joined with
// newlines.
type sseEvent struct {
	Type string
	Data string
}

// sseScanner splits a text/event-stream body into events. Comment lines
// and fields other than event/data are skipped.
type sseScanner struct {
	reader  *bufio.Reader
	current sseEvent
	err     error
}

func newSSEScanner(r io.Reader) *sseScanner {
	return &sseScanner{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Next advances to the next event. It returns false at EOF or on a read
// error; Err tells the two apart.
func (s *sseScanner) Next() bool {
	if s.err != nil {
		return false
	}

	var (
		data      []string
		eventType string
	)
	emit := func() bool {
		s.current = sseEvent{Type: eventType, Data: strings.Join(data, "\n")}
		return true
	}

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			s.err = err
			if err == io.EOF && len(data) > 0 {
				return emit()
			}
			return false
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if len(data) > 0 {
				return emit()
			}
			eventType = ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "data":
			data = append(data, value)
		case "event":
			eventType = value
		}
	}
}

func (s *sseScanner) Event() sseEvent { return s.current }

func (s *sseScanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
