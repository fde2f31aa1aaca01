package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"collectes/internal/reconcile"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	okStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	warnStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	titleStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	mutedStyle = lipgloss.NewStyle().Faint(true)
)

func validateFormat(f string) error {
	switch f {
	case formatText, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unknown format %q (text, json, yaml)", f)
	}
}

func statusStyle(s reconcile.Status) lipgloss.Style {
	switch s {
	case reconcile.StatusOK:
		return okStyle
	case reconcile.StatusWarn:
		return warnStyle
	default:
		return errorStyle
	}
}

func renderStatus(s reconcile.Status) string {
	return statusStyle(s).Render(string(s))
}

// writeStructured json / yaml 输出；yaml 沿用 json 字段名
func writeStructured(w io.Writer, format string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	if format == formatJSON {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return enc.Close()
}

// output text 格式调用 text，其余格式序列化 v
func (a *app) output(w io.Writer, v any, text func(io.Writer) error) error {
	if a.format == formatText {
		return text(w)
	}
	return writeStructured(w, a.format, v)
}
