// Package convio reads and writes conversation transcripts. Three formats
// are supported: a JSON document with full detection metadata, CSV for
// spreadsheet triage, and a plain-text transcript for human review. Imported
// transcripts can be replayed through the engine to rebuild session state.
package convio

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/HoldfastAI/bastion/pkg/scan"
)

// Format identifies a transcript encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatTXT  Format = "txt"
)

// TurnRecord is one exchange in a transcript document.
type TurnRecord struct {
	TurnNumber       int            `json:"turn_number"`
	Timestamp        time.Time      `json:"timestamp"`
	Role             string         `json:"role"`
	Content          string         `json:"content"`
	Response         string         `json:"response,omitempty"`
	RiskScore        float64        `json:"risk_score"`
	DetectedPatterns []string       `json:"detected_patterns,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Document is a full conversation transcript.
type Document struct {
	Metadata       map[string]any `json:"metadata,omitempty"`
	ConversationID string         `json:"conversation_id"`
	StartTime      time.Time      `json:"start_time"`
	EndTime        time.Time      `json:"end_time,omitempty"`
	Turns          []TurnRecord   `json:"turns"`
}

// FromTurns builds a Document from live tracker turns.
func FromTurns(sessionID string, start, end time.Time, turns []scan.Turn) *Document {
	doc := &Document{
		ConversationID: sessionID,
		StartTime:      start,
		EndTime:        end,
		Turns:          make([]TurnRecord, 0, len(turns)),
	}
	for _, t := range turns {
		rec := TurnRecord{
			TurnNumber: t.Number,
			Timestamp:  t.Timestamp,
			Role:       "user",
			Content:    t.Prompt,
			Response:   t.Response,
		}
		if t.Score != nil {
			rec.RiskScore = t.Score.Score
			rec.DetectedPatterns = t.Score.PatternNames()
		}
		doc.Turns = append(doc.Turns, rec)
	}
	return doc
}

// FromRecord builds a Document from a stored session record.
func FromRecord(rec *scan.SessionRecord) *Document {
	doc := &Document{
		ConversationID: rec.ID,
		StartTime:      rec.StartTime,
		EndTime:        rec.EndedAt,
		Turns:          make([]TurnRecord, 0, len(rec.Turns)),
	}
	for _, t := range rec.Turns {
		doc.Turns = append(doc.Turns, TurnRecord{
			TurnNumber: t.Number,
			Timestamp:  t.Timestamp,
			Role:       "user",
			Content:    t.Prompt,
			Response:   t.Response,
			RiskScore:  t.RiskScore,
		})
	}
	return doc
}

// Export writes doc to w in the requested format.
func Export(w io.Writer, doc *Document, format Format) error {
	switch format {
	case FormatJSON:
		return exportJSON(w, doc)
	case FormatCSV:
		return exportCSV(w, doc)
	case FormatTXT:
		return exportTXT(w, doc)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// Import reads a transcript from r in the given format.
func Import(r io.Reader, format Format) (*Document, error) {
	switch format {
	case FormatJSON:
		return importJSON(r)
	case FormatCSV:
		return importCSV(r)
	case FormatTXT:
		return importTXT(r)
	default:
		return nil, fmt.Errorf("unknown import format %q", format)
	}
}

// DetectFormat guesses the format from the file extension, falling back to
// content sniffing: JSON documents start with '{'.
func DetectFormat(path string, head []byte) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".csv":
		return FormatCSV
	case ".txt", ".log":
		return FormatTXT
	}
	trimmed := strings.TrimSpace(string(head))
	if strings.HasPrefix(trimmed, "{") {
		return FormatJSON
	}
	if strings.HasPrefix(trimmed, "turn_number,") {
		return FormatCSV
	}
	return FormatTXT
}

func exportJSON(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func importJSON(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	return &doc, nil
}

var csvHeader = []string{"turn_number", "timestamp", "role", "content", "response", "risk_score"}

func exportCSV(w io.Writer, doc *Document) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, t := range doc.Turns {
		row := []string{
			strconv.Itoa(t.TurnNumber),
			t.Timestamp.Format(time.RFC3339),
			t.Role,
			t.Content,
			t.Response,
			strconv.FormatFloat(t.RiskScore, 'f', 2, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func importCSV(r io.Reader) (*Document, error) {
	cr := csv.NewReader(r)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv transcript: %w", err)
	}
	if len(rows) == 0 {
		return &Document{}, nil
	}

	doc := &Document{}
	start := 0
	if rows[0][0] == csvHeader[0] {
		start = 1
	}
	for i, row := range rows[start:] {
		if len(row) < 6 {
			return nil, fmt.Errorf("csv row %d: expected 6 fields, got %d", i+start+1, len(row))
		}
		num, err := strconv.Atoi(row[0])
		if err != nil {
			return nil, fmt.Errorf("csv row %d: turn number: %w", i+start+1, err)
		}
		ts, err := time.Parse(time.RFC3339, row[1])
		if err != nil {
			return nil, fmt.Errorf("csv row %d: timestamp: %w", i+start+1, err)
		}
		score, err := strconv.ParseFloat(row[5], 64)
		if err != nil {
			return nil, fmt.Errorf("csv row %d: risk score: %w", i+start+1, err)
		}
		doc.Turns = append(doc.Turns, TurnRecord{
			TurnNumber: num,
			Timestamp:  ts,
			Role:       row[2],
			Content:    row[3],
			Response:   row[4],
			RiskScore:  score,
		})
	}
	if len(doc.Turns) > 0 {
		doc.StartTime = doc.Turns[0].Timestamp
		doc.EndTime = doc.Turns[len(doc.Turns)-1].Timestamp
	}
	return doc, nil
}

func exportTXT(w io.Writer, doc *Document) error {
	var b strings.Builder
	b.WriteString("Conversation: " + doc.ConversationID + "\n")
	b.WriteString("Started: " + doc.StartTime.Format(time.RFC3339) + "\n\n")
	for _, t := range doc.Turns {
		ts := t.Timestamp.Format(time.RFC3339)
		b.WriteString("[" + ts + "] User: " + t.Content + "\n")
		if t.Response != "" {
			b.WriteString("[" + ts + "] AI: " + t.Response + "\n")
		}
		b.WriteString(fmt.Sprintf("[Risk Score: %.2f]\n\n", t.RiskScore))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

var (
	txtTurnRe = regexp.MustCompile(`^\[([^\]]+)\]\s+(User|AI|Human|Assistant):\s?(.*)$`)
	txtRiskRe = regexp.MustCompile(`^\[Risk Score:\s*([0-9.]+)\]$`)
)

func importTXT(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read txt transcript: %w", err)
	}

	doc := &Document{}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if m := txtTurnRe.FindStringSubmatch(line); m != nil {
			ts, err := time.Parse(time.RFC3339, m[1])
			if err != nil {
				return nil, fmt.Errorf("txt transcript: bad timestamp %q: %w", m[1], err)
			}
			role := strings.ToLower(m[2])
			if role == "user" || role == "human" {
				doc.Turns = append(doc.Turns, TurnRecord{
					TurnNumber: len(doc.Turns) + 1,
					Timestamp:  ts,
					Role:       "user",
					Content:    m[3],
				})
			} else if len(doc.Turns) > 0 {
				doc.Turns[len(doc.Turns)-1].Response = m[3]
			}
			continue
		}
		if m := txtRiskRe.FindStringSubmatch(line); m != nil && len(doc.Turns) > 0 {
			score, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				return nil, fmt.Errorf("txt transcript: bad risk score %q: %w", m[1], err)
			}
			doc.Turns[len(doc.Turns)-1].RiskScore = score
		}
	}
	if len(doc.Turns) > 0 {
		doc.StartTime = doc.Turns[0].Timestamp
		doc.EndTime = doc.Turns[len(doc.Turns)-1].Timestamp
	}
	return doc, nil
}
