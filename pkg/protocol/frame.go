package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// RAC v2 request bytes. A connection starts with one command byte; the size
// request is followed on the same connection by either CmdAll or CmdChunk.
const (
	CmdSize     = 0x00 // Ask for the current log size in bytes
	CmdSend     = 0x01 // Append an unauthenticated message
	CmdSendAuth = 0x02 // Append a message as a registered user
	CmdRegister = 0x03 // Register a username/password pair

	CmdAll   = 0x01 // After CmdSize: read the whole log
	CmdChunk = 0x02 // After CmdSize: read everything after an offset
)

// Reply codes for CmdSendAuth and CmdRegister. An empty reply means success.
const (
	ReplyUnknownUser = 0x01
	ReplyBadPassword = 0x02
	ReplyUserExists  = 0x01
)

const (
	// MaxChunkSize bounds a single fetch so a misbehaving server cannot make
	// the client allocate unbounded memory (8 MB)
	MaxChunkSize = 8 * 1024 * 1024

	// MaxSizeReplyLen is the longest size reply we accept (decimal digits)
	MaxSizeReplyLen = 20
)

var (
	ErrInvalidSize    = errors.New("invalid size reply")
	ErrChunkTooLarge  = errors.New("chunk exceeds maximum size (8 MB)")
	ErrUnknownUser    = errors.New("user does not exist")
	ErrBadPassword    = errors.New("incorrect password")
	ErrUserExists     = errors.New("user already exists")
	ErrEmptyRequest   = errors.New("empty request")
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidOffset  = errors.New("invalid offset")
	ErrMalformedAuth  = errors.New("malformed credentials")
)

// EncodeSizeRequest returns the size request
func EncodeSizeRequest() []byte {
	return []byte{CmdSize}
}

// EncodeChunkRequest returns the follow-up request for everything after offset
func EncodeChunkRequest(offset int) []byte {
	return append([]byte{CmdChunk}, strconv.Itoa(offset)...)
}

// EncodeWRACChunkRequest returns the single-message WRAC form of a chunk
// fetch: the size command and the follow-up in one binary message
func EncodeWRACChunkRequest(offset int) []byte {
	return append([]byte{CmdSize}, EncodeChunkRequest(offset)...)
}

// EncodeSend returns an unauthenticated send request
func EncodeSend(text string) []byte {
	return append([]byte{CmdSend}, text...)
}

// EncodeAuthSend returns an authenticated send request.
// Format: 0x02 username \n password \n text
func EncodeAuthSend(username, password, text string) []byte {
	var buf bytes.Buffer
	buf.WriteByte(CmdSendAuth)
	buf.WriteString(username)
	buf.WriteByte('\n')
	buf.WriteString(password)
	buf.WriteByte('\n')
	buf.WriteString(text)
	return buf.Bytes()
}

// EncodeRegister returns a registration request.
// Format: 0x03 username \n password
func EncodeRegister(username, password string) []byte {
	var buf bytes.Buffer
	buf.WriteByte(CmdRegister)
	buf.WriteString(username)
	buf.WriteByte('\n')
	buf.WriteString(password)
	return buf.Bytes()
}

// DecodeSize parses a size reply. Servers pad with NULs or whitespace
// depending on implementation, so both are trimmed.
func DecodeSize(reply []byte) (int, error) {
	text := strings.TrimSpace(strings.Trim(string(reply), "\x00"))
	if text == "" || len(text) > MaxSizeReplyLen {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, reply)
	}
	size, err := strconv.Atoi(text)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, reply)
	}
	return size, nil
}

// EncodeSize formats a size reply
func EncodeSize(size int) []byte {
	return []byte(strconv.Itoa(size))
}

// DecodeAuthReply maps an authenticated-send reply to an error
func DecodeAuthReply(reply []byte) error {
	if len(reply) == 0 {
		return nil
	}
	switch reply[0] {
	case ReplyUnknownUser:
		return ErrUnknownUser
	case ReplyBadPassword:
		return ErrBadPassword
	default:
		return fmt.Errorf("unexpected auth reply 0x%02X", reply[0])
	}
}

// DecodeRegisterReply maps a registration reply to an error
func DecodeRegisterReply(reply []byte) error {
	if len(reply) == 0 {
		return nil
	}
	if reply[0] == ReplyUserExists {
		return ErrUserExists
	}
	return fmt.Errorf("unexpected register reply 0x%02X", reply[0])
}

// ChunkSize validates the byte count a chunk fetch is expected to return
func ChunkSize(size, offset int) (int, error) {
	if size <= offset {
		return 0, nil
	}
	n := size - offset
	if n > MaxChunkSize {
		return 0, ErrChunkTooLarge
	}
	return n, nil
}

// SplitLines splits a fetched chunk into non-empty lines. Invalid UTF-8 is
// replaced rather than rejected so nothing the server sent is dropped.
func SplitLines(chunk []byte) []string {
	text := strings.ToValidUTF8(string(chunk), "�")
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// RequestKind identifies a decoded request (server side)
type RequestKind int

const (
	RequestSize  RequestKind = iota
	RequestChunk             // WRAC only: size command with the follow-up attached
	RequestSend
	RequestSendAuth
	RequestRegister
)

// Request is a decoded client request
type Request struct {
	Kind     RequestKind
	Offset   int
	Username string
	Password string
	Text     string
}

// DecodeRequest decodes the first message of a connection
func DecodeRequest(b []byte) (Request, error) {
	if len(b) == 0 {
		return Request{}, ErrEmptyRequest
	}
	switch b[0] {
	case CmdSize:
		if len(b) == 1 {
			return Request{Kind: RequestSize}, nil
		}
		offset, err := DecodeFollowUp(b[1:])
		if err != nil {
			return Request{}, err
		}
		return Request{Kind: RequestChunk, Offset: offset}, nil
	case CmdSend:
		return Request{Kind: RequestSend, Text: string(b[1:])}, nil
	case CmdSendAuth:
		parts := strings.SplitN(string(b[1:]), "\n", 3)
		if len(parts) != 3 || parts[0] == "" {
			return Request{}, ErrMalformedAuth
		}
		return Request{Kind: RequestSendAuth, Username: parts[0], Password: parts[1], Text: parts[2]}, nil
	case CmdRegister:
		parts := strings.SplitN(string(b[1:]), "\n", 2)
		if len(parts) != 2 || parts[0] == "" {
			return Request{}, ErrMalformedAuth
		}
		return Request{Kind: RequestRegister, Username: parts[0], Password: parts[1]}, nil
	default:
		return Request{}, fmt.Errorf("%w: 0x%02X", ErrUnknownCommand, b[0])
	}
}

// DecodeFollowUp decodes the request sent after a size reply.
// Returns the offset to read from (0 for CmdAll).
func DecodeFollowUp(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, ErrEmptyRequest
	}
	switch b[0] {
	case CmdAll:
		return 0, nil
	case CmdChunk:
		offset, err := strconv.Atoi(strings.TrimSpace(string(b[1:])))
		if err != nil || offset < 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidOffset, b[1:])
		}
		return offset, nil
	default:
		return 0, fmt.Errorf("%w: 0x%02X", ErrUnknownCommand, b[0])
	}
}
