package prompt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/serverpanel/ai-assistant/internal/config"
	"github.com/serverpanel/ai-assistant/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	// TruncationMarker is appended to file excerpts cut at the character limit.
	TruncationMarker = "\n... (truncated)"
	instruction      = "Please provide a helpful response based on the above context."
)

var errNoFileSource = fmt.Errorf("%w: file access not configured", models.ErrSourceUnavailable)

// LogSource returns the most recent console lines of a server.
type LogSource interface {
	RecentLogs(ctx context.Context, serverID string, lines int) (string, error)
}

// FileSource returns the raw content of a file on a server.
type FileSource interface {
	FileContents(ctx context.Context, serverID, path string) (string, error)
}

// sourceResult holds the outcome of one best-effort fetch. It always renders
// to text so a failed source degrades into a note inside the prompt.
type sourceResult struct {
	content string
	err     error
}

func (r sourceResult) render(failurePrefix string) string {
	if r.err != nil {
		return failurePrefix + r.err.Error()
	}
	return r.content
}

// Builder assembles the single prompt sent to the generation endpoint.
type Builder struct {
	logs          LogSource
	files         FileSource
	logLines      int
	maxFileChars  int
	sourceTimeout time.Duration
	logger        *logrus.Logger
}

// NewBuilder creates a new prompt builder
func NewBuilder(logs LogSource, files FileSource, cfg *config.ChatConfig, logger *logrus.Logger) *Builder {
	b := &Builder{
		logs:          logs,
		files:         files,
		logLines:      cfg.LogLines,
		maxFileChars:  cfg.MaxFileChars,
		sourceTimeout: cfg.SourceTimeout,
		logger:        logger,
	}
	if b.logLines <= 0 {
		b.logLines = 30
	}
	if b.maxFileChars <= 0 {
		b.maxFileChars = 5000
	}
	if b.sourceTimeout <= 0 {
		b.sourceTimeout = 10 * time.Second
	}
	return b
}

// Build returns the prompt for one chat turn. Source failures never escape;
// they are described inline instead.
func (b *Builder) Build(ctx context.Context, serverID, message string, includeLogs bool, filePath string) string {
	var sb strings.Builder
	sb.WriteString("User message: ")
	sb.WriteString(message)
	sb.WriteString("\n\n")

	if includeLogs {
		logs := b.fetchLogs(ctx, serverID)
		sb.WriteString("Recent console logs:\n")
		sb.WriteString(logs.render("Console logs not available: "))
		sb.WriteString("\n\n")
	}

	if filePath != "" {
		file := b.fetchFile(ctx, serverID, filePath)
		if file.err != nil {
			sb.WriteString(file.render("Unable to read file: "))
		} else {
			sb.WriteString("File content (")
			sb.WriteString(filePath)
			sb.WriteString("):\n")
			sb.WriteString(Truncate(file.content, b.maxFileChars))
		}
		sb.WriteString("\n\n")
	}

	sb.WriteString(instruction)
	return sb.String()
}

func (b *Builder) fetchLogs(ctx context.Context, serverID string) sourceResult {
	if b.logs == nil {
		return sourceResult{content: "Console logs not available via API."}
	}

	ctx, cancel := context.WithTimeout(ctx, b.sourceTimeout)
	defer cancel()

	content, err := b.logs.RecentLogs(ctx, serverID, b.logLines)
	if err != nil {
		b.logger.WithError(err).WithField("server_id", serverID).Warn("Failed to fetch console logs")
	}
	return sourceResult{content: content, err: err}
}

func (b *Builder) fetchFile(ctx context.Context, serverID, path string) sourceResult {
	if b.files == nil {
		return sourceResult{content: "", err: errNoFileSource}
	}

	ctx, cancel := context.WithTimeout(ctx, b.sourceTimeout)
	defer cancel()

	content, err := b.files.FileContents(ctx, serverID, path)
	if err != nil {
		b.logger.WithError(err).WithFields(logrus.Fields{
			"server_id": serverID,
			"path":      path,
		}).Warn("Failed to read file")
	}
	return sourceResult{content: content, err: err}
}

// Truncate keeps the first limit characters of content and appends
// TruncationMarker when anything was cut.
func Truncate(content string, limit int) string {
	if len(content) <= limit {
		return content
	}
	count := 0
	for i := range content {
		if count == limit {
			return content[:i] + TruncationMarker
		}
		count++
	}
	return content
}
