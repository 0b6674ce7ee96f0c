package server

import (
	"errors"

	"github.com/aeolun/tower/pkg/protocol"
)

// ErrMessageTooLong is logged when a send exceeds MaxMessageLength
var ErrMessageTooLong = errors.New("message too long")

// handleRequest applies one decoded request to the log and returns the
// reply. An empty reply means success for sends and registrations.
func (s *Server) handleRequest(sess *connInfo, req protocol.Request) []byte {
	s.metrics.RecordRequest(req.Kind)

	switch req.Kind {
	case protocol.RequestSize:
		return protocol.EncodeSize(s.log.Size())

	case protocol.RequestChunk:
		return s.log.Range(req.Offset, s.log.Size())

	case protocol.RequestSend:
		if err := s.appendMessage(req.Text); err != nil {
			sess.logger.Warn().Err(err).Int("len", len(req.Text)).Msg("send rejected")
		}
		return nil

	case protocol.RequestSendAuth:
		if err := s.log.Authenticate(req.Username, req.Password); err != nil {
			sess.logger.Debug().Err(err).Str("user", req.Username).Msg("auth send rejected")
			return replyFor(err)
		}
		if err := s.appendMessage(req.Text); err != nil {
			sess.logger.Warn().Err(err).Int("len", len(req.Text)).Msg("send rejected")
		}
		return nil

	case protocol.RequestRegister:
		if err := s.log.Register(req.Username, req.Password); err != nil {
			sess.logger.Debug().Err(err).Str("user", req.Username).Msg("register rejected")
			return replyFor(err)
		}
		sess.logger.Info().Str("user", req.Username).Msg("user registered")
		return nil
	}
	return nil
}

func (s *Server) appendMessage(text string) error {
	if s.config.MaxMessageLength > 0 && len(text) > s.config.MaxMessageLength {
		return ErrMessageTooLong
	}
	s.log.Append(text)
	s.metrics.RecordAppend(s.log.Size())
	return nil
}

func replyFor(err error) []byte {
	switch {
	case errors.Is(err, protocol.ErrUnknownUser):
		return []byte{protocol.ReplyUnknownUser}
	case errors.Is(err, protocol.ErrBadPassword):
		return []byte{protocol.ReplyBadPassword}
	case errors.Is(err, protocol.ErrUserExists):
		return []byte{protocol.ReplyUserExists}
	}
	return nil
}
