// Package output renders optimizer results for the command line.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/semiotic-ai/allocopt/internal/allocopt"
	"github.com/semiotic-ai/allocopt/pkg/constants"
	"github.com/semiotic-ai/allocopt/pkg/format"
	"github.com/semiotic-ai/allocopt/pkg/grt"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Write renders result in the named output format.
func Write(w io.Writer, outputFormat string, indexer string, result allocopt.Result) error {
	switch outputFormat {
	case constants.OutputFormatPretty:
		return PrettyFormat(w, indexer, result)
	case constants.OutputFormatCSV:
		return CsvFormat(w, result)
	case constants.OutputFormatJSON:
		return JSONFormat(w, indexer, result)
	default:
		return fmt.Errorf("unsupported output format %q", outputFormat)
	}
}

// PrettyFormat outputs a human-readable rather than machine-readable table.
func PrettyFormat(w io.Writer, indexer string, result allocopt.Result) error {
	p := message.NewPrinter(language.English)
	if _, err := p.Fprintf(w, "--- Allocations for indexer %s ---\n", indexer); err != nil {
		return err
	}
	if len(result) == 0 {
		_, err := p.Fprintf(w, "No allocations proposed\n")
		return err
	}

	_, _ = p.Fprintf(w, "Deployment | Amount\n")
	_, _ = p.Fprintf(w, "__________ | ______\n")
	for _, id := range result.DeploymentIDs() {
		_, _ = p.Fprintf(w, "%s | %s\n", id, format.Wei(result[id]))
	}
	_, err := p.Fprintf(w, "Total: %s across %d deployments\n", format.Wei(result.Total()), len(result))
	return err
}

// CsvFormat outputs in comma-separated value format with exact wei and GRT
// columns.
func CsvFormat(w io.Writer, result allocopt.Result) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"deployment", "amount (wei)", "amount (GRT)"}); err != nil {
		return err
	}
	for _, id := range result.DeploymentIDs() {
		amount, err := grt.Format(result[id])
		if err != nil {
			return fmt.Errorf("deployment %s: %w", id, err)
		}
		if err := writer.Write([]string{id, result[id].String(), amount}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

type jsonAllocation struct {
	DeploymentID string `json:"deploymentId"`
	AmountWei    string `json:"amountWei"`
	AmountGRT    string `json:"amountGrt"`
}

type jsonReport struct {
	Indexer     string           `json:"indexer"`
	Allocations []jsonAllocation `json:"allocations"`
	TotalWei    string           `json:"totalWei"`
	TotalGRT    string           `json:"totalGrt"`
}

// JSONFormat outputs an indented JSON report. Amounts are strings so no
// precision is lost to JSON number handling.
func JSONFormat(w io.Writer, indexer string, result allocopt.Result) error {
	report := jsonReport{Indexer: indexer, Allocations: make([]jsonAllocation, 0, len(result))}
	for _, id := range result.DeploymentIDs() {
		amount, err := grt.Format(result[id])
		if err != nil {
			return fmt.Errorf("deployment %s: %w", id, err)
		}
		report.Allocations = append(report.Allocations, jsonAllocation{
			DeploymentID: id,
			AmountWei:    result[id].String(),
			AmountGRT:    amount,
		})
	}
	total := result.Total()
	totalGRT, err := grt.Format(total)
	if err != nil {
		return fmt.Errorf("total: %w", err)
	}
	report.TotalWei = total.String()
	report.TotalGRT = totalGRT

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
