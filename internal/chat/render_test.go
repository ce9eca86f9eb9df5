package chat

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRenderHTML(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	turns := []Turn{
		{Role: RoleUser, Content: "Compare **wafer** probes", Timestamp: ts},
		{Role: RoleAssistant, Content: "- TW123\n- TW456\n<script>alert(1)</script>", MemoryMode: true, Timestamp: ts},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderHTML(&buf, "Patent Q&A", turns))
	out := buf.String()

	require.Contains(t, out, "<title>Patent Q&amp;A</title>")
	require.Contains(t, out, "<strong>wafer</strong>")
	require.Contains(t, out, "<li>TW123</li>")
	require.Contains(t, out, "2026-03-01 09:30")
	require.Contains(t, out, `class="turn assistant"`)
	require.NotContains(t, out, "<script>")
}

func TestRenderHTML_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderHTML(&buf, "Transcript", nil))
	require.Contains(t, buf.String(), "No messages yet.")
}
