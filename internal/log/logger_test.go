/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package log

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func lastJSONLine(t *testing.T, b []byte) map[string]any {
	t.Helper()
	scanner := bufio.NewScanner(bytes.NewReader(b))
	var last string
	for scanner.Scan() {
		if s := strings.TrimSpace(scanner.Text()); s != "" {
			last = s
		}
	}
	if last == "" {
		t.Fatalf("no log lines found")
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(last), &m); err != nil {
		t.Fatalf("unmarshal json log: %v", err)
	}
	return m
}

// TestInitWritesScriptRecordsToFileAndConsole checks that one record reaches
// both the rotating file and the console writer, carrying the script file.
func TestInitWritesScriptRecordsToFileAndConsole(t *testing.T) {
	// temp dir file, Windows refuses to delete a still-open handle
	fpath := filepath.Join(os.TempDir(), fmt.Sprintf("lex_log_%d.json", time.Now().UnixNano()))
	var console bytes.Buffer
	Init(Options{Level: "info", Format: "json", File: fpath, Writer: &console})
	defer Init(Options{Level: "info", Writer: &bytes.Buffer{}})

	ctx := WithFile(context.Background(), "intro.lex")
	l := WithOperation(WithComponent("script"), "step")
	l.DebugContext(ctx, "filtered out")
	l.WarnContext(ctx, "gold is low", slog.Int("line", 12))

	time.Sleep(50 * time.Millisecond)
	b, err := os.ReadFile(fpath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if bytes.Contains(b, []byte("filtered out")) || strings.Contains(console.String(), "filtered out") {
		t.Fatalf("debug record passed an info level logger")
	}

	for name, m := range map[string]map[string]any{"file": lastJSONLine(t, b), "console": lastJSONLine(t, console.Bytes())} {
		if m["app"] != "lex" {
			t.Fatalf("%s: missing app attr: %v", name, m["app"])
		}
		if _, ok := m["ver"].(string); !ok {
			t.Fatalf("%s: missing ver attr", name)
		}
		if m["component"] != "script" || m["op"] != "step" {
			t.Fatalf("%s: component/op mismatch: %v %v", name, m["component"], m["op"])
		}
		if m["file"] != "intro.lex" {
			t.Fatalf("%s: file attr mismatch: %v", name, m["file"])
		}
		if m["msg"] != "gold is low" || m["level"] != "WARN" || m["line"] != float64(12) {
			t.Fatalf("%s: record mismatch: %v", name, m)
		}
	}
}
