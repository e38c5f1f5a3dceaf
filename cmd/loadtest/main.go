// Command loadtest drives a running gateway with concurrent write and read
// traffic and reports throughput and latency percentiles.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type result struct {
	op       string
	duration time.Duration
	err      error
}

func main() {
	var (
		gatewayURL = flag.String("gateway-url", "http://localhost:8080", "Gateway base URL")
		duration   = flag.Duration("duration", 30*time.Second, "Test duration")
		workers    = flag.Int("workers", 5, "Number of worker goroutines")
		fileSize   = flag.Int64("file-size", 512*1024, "Uploaded file size in bytes")
		readRatio  = flag.Float64("read-ratio", 0.7, "Fraction of operations that are reads")
		prefix     = flag.String("prefix", "loadtest", "Path prefix for generated files")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	)

	flag.Parse()

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	logger.WithFields(logrus.Fields{
		"gateway_url": *gatewayURL,
		"duration":    *duration,
		"workers":     *workers,
		"file_size":   *fileSize,
		"read_ratio":  *readRatio,
	}).Info("Starting load test")

	payload := make([]byte, *fileSize)
	if _, err := rand.Read(payload); err != nil {
		logger.WithError(err).Fatal("Failed to generate payload")
	}

	client := &http.Client{Timeout: 5 * time.Minute}

	// Seed one file per worker so reads always have something to hit.
	for i := 0; i < *workers; i++ {
		path := fmt.Sprintf("%s/seed-%03d.bin", *prefix, i)
		if err := putFile(client, *gatewayURL, path, payload); err != nil {
			logger.WithError(err).Fatal("Seed upload failed, is the gateway running?")
		}
	}

	results := make(chan result, 4096)
	deadline := time.Now().Add(*duration)

	var wg sync.WaitGroup
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(worker)))
			seq := 0
			for time.Now().Before(deadline) {
				if rng.Float64() < *readRatio {
					path := fmt.Sprintf("%s/seed-%03d.bin", *prefix, worker)
					start := time.Now()
					err := getFile(client, *gatewayURL, path)
					results <- result{op: "read", duration: time.Since(start), err: err}
				} else {
					seq++
					path := fmt.Sprintf("%s/w%03d-%06d.bin", *prefix, worker, seq)
					start := time.Now()
					err := putFile(client, *gatewayURL, path, payload)
					results <- result{op: "write", duration: time.Since(start), err: err}
				}
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var reads, writes, errors int
	var readLatencies, writeLatencies []time.Duration
	for res := range results {
		if res.err != nil {
			errors++
			logger.WithError(res.err).Debug("Operation failed")
			continue
		}
		switch res.op {
		case "read":
			reads++
			readLatencies = append(readLatencies, res.duration)
		case "write":
			writes++
			writeLatencies = append(writeLatencies, res.duration)
		}
	}

	logger.WithFields(logrus.Fields{
		"reads":     reads,
		"writes":    writes,
		"errors":    errors,
		"read_p50":  percentile(readLatencies, 50),
		"read_p99":  percentile(readLatencies, 99),
		"write_p50": percentile(writeLatencies, 50),
		"write_p99": percentile(writeLatencies, 99),
	}).Info("Load test complete")

	if errors > 0 {
		os.Exit(1)
	}
}

func putFile(client *http.Client, base, path string, payload []byte) error {
	req, err := http.NewRequest(http.MethodPut, base+"/files/"+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status %d for PUT %s", resp.StatusCode, path)
	}
	return nil
}

func getFile(client *http.Client, base, path string) error {
	resp, err := client.Get(base + "/files/" + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d for GET %s", resp.StatusCode, path)
	}
	return nil
}

func percentile(latencies []time.Duration, p int) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
