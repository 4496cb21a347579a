package stream

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadUntilReturnsLineIncludingDelim(t *testing.T) {
	r := NewReader(strings.NewReader("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))

	line, err := r.ReadUntil('\n')
	require.NoError(t, err)
	assert.Equal(t, "GET / HTTP/1.1\r\n", string(line))

	line, err = r.ReadUntil('\n')
	require.NoError(t, err)
	assert.Equal(t, "Host: x\r\n", string(line))
}

func TestReadUntilEOFBeforeDelimIsConnectionClosed(t *testing.T) {
	r := NewReader(strings.NewReader("no newline here"))
	_, err := r.ReadUntil('\n')
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestReadUntilEnforcesLineLimit(t *testing.T) {
	r := NewReader(strings.NewReader(strings.Repeat("A", 100) + "\n"))
	r.LineLimit = 10
	_, err := r.ReadUntil('\n')
	assert.ErrorIs(t, err, ErrLineTooLong)
}

func TestReadExactReturnsRequestedBytes(t *testing.T) {
	r := NewReader(strings.NewReader("hello world"))
	got, err := r.ReadExact(5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestReadExactZeroReturnsNil(t *testing.T) {
	r := NewReader(strings.NewReader("hello"))
	got, err := r.ReadExact(0)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReadExactShortReadIsConnectionClosed(t *testing.T) {
	r := NewReader(strings.NewReader("ab"))
	_, err := r.ReadExact(5)
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestWriterWriteAllThenFlush(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.WriteAll([]byte("part one ")))
	require.NoError(t, w.WriteAll([]byte("part two")))
	assert.Empty(t, buf.String(), "bufio.Writer should hold bytes until Flush")

	require.NoError(t, w.Flush())
	assert.Equal(t, "part one part two", buf.String())
}
