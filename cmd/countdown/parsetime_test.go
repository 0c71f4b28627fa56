package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"countdown/internal/timeparse"
)

func runParseTime(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newParseTimeCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestParseTimeCmd(t *testing.T) {
	out, err := runParseTime(t, "3pm", "8:05")
	require.NoError(t, err)
	assert.Contains(t, out, "\"3pm\"\t15:00\t3pm")
	assert.Contains(t, out, "\"8:05\"\t08:05\t8:05am")
}

func TestParseTimeCmdJSON(t *testing.T) {
	out, err := runParseTime(t, "--json", "12pm")
	require.NoError(t, err)
	assert.Equal(t, "{\"hour\":12,\"minute\":0}\n", out)
}

func TestParseTimeCmdRejects(t *testing.T) {
	_, err := runParseTime(t, "8 xm")
	var pe *timeparse.ParseError
	assert.ErrorAs(t, err, &pe)

	_, err = runParseTime(t)
	assert.Error(t, err)
}
