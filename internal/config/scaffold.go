package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Starter project files written by `troupe init`. They form a runnable
// two-agent research crew plus a review flow over it.

const scaffoldMain = `name: %s
version: "1.0"

provider:
  name: openai
  model: gpt-4o-mini
  # api_key: ${env.OPENAI_API_KEY}
  # base_url: http://localhost:11434/v1

server:
  host: 0.0.0.0
  port: 8080

queue:
  driver: redis
  redis_url: redis://localhost:6379/0
  prefix: troupe
  concurrency: 4

logging:
  level: info
  format: text
  # file: .troupe/troupe.log
  # metrics: .troupe/metrics.jsonl

state:
  driver: sqlite
  path: .troupe/state.db

# workspace: .
# tools:
#   - name: wordcount
#     description: Count words in text piped to stdin
#     provider: exec
#     config:
#       command: wc -w
#       timeout: 30

# hooks:
#   enabled: true
#   hooks:
#     - name: notify-failures
#       type: webhook
#       url: https://hooks.example.com/troupe
#       events: [task.failed, crew.failed, job.failed]
`

const scaffoldAgents = `researcher:
  role: Senior Researcher on {topic}
  goal: Find accurate, current information about {topic}
  backstory: >
    You are a meticulous researcher who verifies claims before reporting
    them. You prefer primary sources and concise findings.
  tools:
    - http_get
  max_iter: 6

writer:
  role: Technical Writer
  goal: Turn research notes into a clear summary
  backstory: >
    You write plainly and structure information for busy readers.
  verbose: true
`

const scaffoldTasks = `research:
  description: Research {topic} and collect the five most important facts.
  expected_output: A bullet list of five facts with one-line explanations.
  agent: researcher

summarize:
  description: Write a one-paragraph summary from the research findings.
  expected_output: A single paragraph of at most 120 words.
  agent: writer
  context:
    - research
`

const scaffoldCrew = `name: research
description: Research a topic and summarize the findings.
tasks:
  - research
  - summarize
process:
  type: sequential
  fail_fast: true
`

const scaffoldFlow = `name: review
description: Run the research crew, then route on the summary content.
max_iterations: 10
states:
  - id: draft
    is_initial: true
    crew: research
  - id: approved
    is_final: true
  - id: rejected
    is_final: true
transitions:
  - from: draft
    to: approved
    priority: 10
    condition:
      type: on_success
  - from: draft
    to: rejected
    priority: 5
    condition:
      type: always
`

// Scaffold writes a starter project into dir. Existing files are left
// untouched; the returned list names the files actually created.
func Scaffold(dir, projectName string) ([]string, error) {
	if projectName == "" {
		projectName = filepath.Base(dir)
	}

	files := []struct {
		rel     string
		content string
	}{
		{"troupe.yaml", fmt.Sprintf(scaffoldMain, projectName)},
		{"agents.yaml", scaffoldAgents},
		{"tasks.yaml", scaffoldTasks},
		{"crews/research.yaml", scaffoldCrew},
		{"flows/review.yaml", scaffoldFlow},
	}

	var created []string
	for _, f := range files {
		rel, content := f.rel, f.content
		path := filepath.Join(dir, rel)
		if _, err := os.Stat(path); err == nil {
			continue // keep operator edits
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return created, fmt.Errorf("failed to create %s: %w", filepath.Dir(rel), err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return created, fmt.Errorf("failed to write %s: %w", rel, err)
		}
		created = append(created, rel)
	}
	return created, nil
}
