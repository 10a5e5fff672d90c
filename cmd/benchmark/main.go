// Benchmark tool for testing Harrier against labeled scam conversations.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/conversations.csv -url http://localhost:8080
//
// The CSV carries one conversation per row: an id column, a label column
// (1 = scam, 0 = benign), and a text column holding the messages joined
// with " || ".
//
// This tool:
//   1. Reads the labeled conversation data
//   2. Sends each conversation to Harrier for analysis
//   3. Treats HIGH/CRITICAL risk levels as a scam verdict
//   4. Calculates precision, recall, F1-score, and confusion matrix
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledConversation is a row from the benchmark dataset.
type LabeledConversation struct {
	ID       string
	Messages []string
	IsScam   bool
}

// AnalyzeRequest is the Harrier API request format.
type AnalyzeRequest struct {
	SubjectID string    `json:"subjectId"`
	Messages  []Message `json:"messages"`
	Options   Options   `json:"options"`
}

type Message struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type Options struct {
	RealTime bool `json:"realTime,omitempty"`
}

// AnalyzeResponse is the subset of the detection result the benchmark reads.
type AnalyzeResponse struct {
	ID           string  `json:"id"`
	RiskLevel    string  `json:"riskLevel"`
	OverallScore float64 `json:"overallScore"`
	Confidence   int     `json:"confidence"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // Scam detected as HIGH/CRITICAL
	FalsePositives int64 // Benign detected as HIGH/CRITICAL
	TrueNegatives  int64 // Benign detected as LOW/MEDIUM
	FalseNegatives int64 // Scam detected as LOW/MEDIUM (missed scam!)

	TotalProcessed int64
	TotalScam      int64
	TotalBenign    int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to labeled conversation CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Harrier base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum conversations to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	scamOnly := flag.Bool("scam-only", false, "Only test scam conversations")
	verbose := flag.Bool("verbose", false, "Print each conversation result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/conversations.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║          HARRIER BENCHMARK - Scam Conversation Detection      ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:     %s\n", *csvPath)
	fmt.Printf("Harrier URL:  %s\n", *baseURL)
	fmt.Printf("Tenant ID:    %s\n", *tenantID)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("Limit:        %d\n", *limit)
	fmt.Printf("Scam Only:    %v\n", *scamOnly)
	fmt.Println()

	// Check Harrier is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Harrier not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Harrier is running:")
		fmt.Println("  cd harrier && go run cmd/harrier/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Harrier is healthy")

	// Read labeled data
	fmt.Printf("\nReading conversations from %s...\n", *csvPath)
	conversations, err := readConversationCSV(*csvPath, *limit, *scamOnly)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d conversations\n", len(conversations))

	// Count scam vs benign
	scamCount := 0
	for _, conv := range conversations {
		if conv.IsScam {
			scamCount++
		}
	}
	fmt.Printf("  - Scam:   %d (%.2f%%)\n", scamCount, 100*float64(scamCount)/float64(len(conversations)))
	fmt.Printf("  - Benign: %d (%.2f%%)\n", len(conversations)-scamCount, 100*float64(len(conversations)-scamCount)/float64(len(conversations)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(conversations, *baseURL, *tenantID, *workers, *verbose)
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readConversationCSV(path string, limit int, scamOnly bool) ([]LabeledConversation, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{"id", "label", "text"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	var conversations []LabeledConversation

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		isScam := record[colIndex["label"]] == "1"
		if scamOnly && !isScam {
			continue
		}

		var messages []string
		for _, part := range strings.Split(record[colIndex["text"]], "||") {
			if part = strings.TrimSpace(part); part != "" {
				messages = append(messages, part)
			}
		}
		if len(messages) == 0 {
			continue
		}

		conversations = append(conversations, LabeledConversation{
			ID:       record[colIndex["id"]],
			Messages: messages,
			IsScam:   isScam,
		})

		if limit > 0 && len(conversations) >= limit {
			break
		}
	}

	return conversations, nil
}

func runBenchmark(conversations []LabeledConversation, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel
	work := make(chan LabeledConversation, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for conv := range work {
				start := time.Now()
				result, err := analyzeConversation(client, baseURL, tenantID, conv)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", conv.ID, err)
					}
					continue
				}

				// Track actual labels
				if conv.IsScam {
					atomic.AddInt64(&metrics.TotalScam, 1)
				} else {
					atomic.AddInt64(&metrics.TotalBenign, 1)
				}

				// Calculate confusion matrix
				predicted := result.RiskLevel == "HIGH" || result.RiskLevel == "CRITICAL"
				actual := conv.IsScam

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if (predicted && !actual) || (!predicted && actual) {
						status = "✗"
					}
					id := conv.ID
					if len(id) > 10 {
						id = id[:10]
					}
					fmt.Printf("%s %-10s | Messages: %3d | Scam: %-5v | Harrier: %-8s (%.1f) | Confidence: %d%%\n",
						status,
						id,
						len(conv.Messages),
						conv.IsScam,
						result.RiskLevel,
						result.OverallScore,
						result.Confidence,
					)
				}
			}
		}()
	}

	// Send work
	for _, conv := range conversations {
		work <- conv
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func analyzeConversation(client *http.Client, baseURL, tenantID string, conv LabeledConversation) (*AnalyzeResponse, error) {
	req := AnalyzeRequest{
		SubjectID: "bench-" + conv.ID,
		// Bypass the result cache so repeated runs measure the pipeline
		Options: Options{RealTime: true},
	}
	for i, text := range conv.Messages {
		req.Messages = append(req.Messages, Message{
			ID:   fmt.Sprintf("%s-m%d", conv.ID, i+1),
			Text: text,
		})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/analyze/conversation", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result AnalyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Scam:       %d\n", m.TotalScam)
	fmt.Printf("   Total Benign:     %d\n", m.TotalBenign)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                    SCAM        SAFE")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  S  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("           B  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	// Calculate metrics
	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of scam verdicts, how many were actual scams)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of scams, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	// Detection rate analysis
	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalScam > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalScam) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalScam) * 100
		fmt.Printf("   Scams Detected:    %d / %d (%.2f%%)\n", m.TruePositives, m.TotalScam, detectionRate)
		fmt.Printf("   Scams Missed:      %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalScam, missRate)
	}
	if m.TotalBenign > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalBenign) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalBenign, falseAlarmRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		rps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f conversations/sec\n", rps)
	}

	// Interpretation
	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - catching most scams")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but missing some scams")
	} else if recall >= 0.5 {
		fmt.Println("   ⚠️  Moderate recall - significant scams being missed")
	} else {
		fmt.Println("   ❌ Poor recall - most scams are being missed!")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - alerts are meaningful")
	} else if precision >= 0.2 {
		fmt.Println("   ⚠️  Low precision - many false alarms")
	} else {
		fmt.Println("   ❌ Very low precision - mostly false alarms")
	}

	fmt.Println()
}
