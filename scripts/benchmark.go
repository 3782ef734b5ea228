package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

type benchTask struct {
	TaskID   string `json:"task_id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type invokeRequest struct {
	Input string `json:"input"`
}

type invokeResponse struct {
	RunID   string `json:"run_id"`
	Answer  string `json:"answer"`
	Aborted bool   `json:"aborted"`
	Error   string `json:"error"`
}

func main() {
	server := flag.String("server", "http://localhost:8080", "assistant base URL")
	tasksPath := flag.String("tasks", "", "JSONL file with task_id/question/answer lines")
	timeout := flag.Duration("timeout", 120*time.Second, "per-task timeout")
	flag.Parse()
	if *tasksPath == "" {
		fmt.Println("usage: benchmark -tasks=tasks.jsonl [-server=http://localhost:8080]")
		os.Exit(1)
	}

	f, err := os.Open(*tasksPath)
	if err != nil {
		fmt.Println("open tasks:", err)
		os.Exit(1)
	}
	defer f.Close()

	client := &http.Client{Timeout: *timeout}
	var total, correct, aborted int
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var task benchTask
		if err := json.Unmarshal([]byte(line), &task); err != nil {
			fmt.Println("skip bad line:", err)
			continue
		}
		total++
		res, err := invoke(client, *server, task.Question)
		if err != nil {
			fmt.Printf("%s\tERROR\t%v\n", task.TaskID, err)
			continue
		}
		if res.Aborted {
			aborted++
			fmt.Printf("%s\tABORTED\t%s\n", task.TaskID, res.Error)
			continue
		}
		if matches(res.Answer, task.Answer) {
			correct++
			fmt.Printf("%s\tOK\n", task.TaskID)
		} else {
			fmt.Printf("%s\tMISS\texpected=%q got=%q\n", task.TaskID, task.Answer, res.Answer)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Println("read tasks:", err)
		os.Exit(1)
	}

	fmt.Printf("\ntotal=%d correct=%d aborted=%d accuracy=%.1f%%\n",
		total, correct, aborted, percentage(correct, total))
}

func invoke(client *http.Client, server, question string) (*invokeResponse, error) {
	body, err := json.Marshal(invokeRequest{Input: question})
	if err != nil {
		return nil, err
	}
	resp, err := client.Post(strings.TrimRight(server, "/")+"/v1/chat/invoke", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	var out invokeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// matches accepts an answer containing the expected string after loose
// normalization, which is how short factual answers usually come back
// embedded in a sentence.
func matches(got, want string) bool {
	got = normalize(got)
	want = normalize(want)
	if want == "" {
		return false
	}
	return got == want || strings.Contains(got, want)
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ".")
	return strings.Join(strings.Fields(s), " ")
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
