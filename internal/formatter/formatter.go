// package formatter renders playback devices as plain text, JSON, or CSV
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/desertthunder/spotctl/internal/models"
	"github.com/desertthunder/spotctl/internal/shared"
)

// Format names an output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat accepts "text", "json", or "csv" in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatCSV:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: format %q", shared.ErrInvalidFlag, s)
	}
}

// Devices renders devices in format. selectedID marks the persisted selection in text output.
func Devices(devices []models.Device, format Format, selectedID string) ([]byte, error) {
	switch format {
	case FormatJSON:
		return DevicesToJSON(devices)
	case FormatCSV:
		return DevicesToCSV(devices)
	default:
		return DevicesToText(devices, selectedID)
	}
}

// DevicesToText renders an aligned table. '*' marks the active device and '>' the selected one.
func DevicesToText(devices []models.Device, selectedID string) ([]byte, error) {
	if len(devices) == 0 {
		return []byte("No devices available\n"), nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tID\tNAME\tTYPE\tVOLUME")
	for _, d := range devices {
		marker := ""
		if d.Active {
			marker += "*"
		}
		if selectedID != "" && d.ID == selectedID {
			marker += ">"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d%%\n", marker, d.ID, d.Name, d.Type, d.Volume)
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("failed to write table: %w", err)
	}
	return buf.Bytes(), nil
}

// DevicesToJSON renders devices as an indented JSON array.
func DevicesToJSON(devices []models.Device) ([]byte, error) {
	if devices == nil {
		devices = []models.Device{}
	}
	data, err := json.MarshalIndent(devices, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal devices: %w", err)
	}
	return append(data, '\n'), nil
}

// DevicesToCSV renders devices with columns: ID, Name, Type, Active, Volume
func DevicesToCSV(devices []models.Device) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"ID", "Name", "Type", "Active", "Volume"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, d := range devices {
		record := []string{d.ID, d.Name, d.Type, strconv.FormatBool(d.Active), strconv.Itoa(d.Volume)}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}
