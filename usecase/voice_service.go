package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/pdfchat/domain"
	"github.com/satriahrh/cocoa-fruit/pdfchat/utils/log"
)

// VoiceService lets a user ask by voice and listen to the last answer.
type VoiceService struct {
	chat        *ChatService
	transcriber domain.Transcriber
	synthesizer domain.Synthesizer
}

func NewVoiceService(chat *ChatService, transcriber domain.Transcriber, synthesizer domain.Synthesizer) *VoiceService {
	return &VoiceService{chat: chat, transcriber: transcriber, synthesizer: synthesizer}
}

// AskByVoice returns the transcribed question alongside the answer.
func (v *VoiceService) AskByVoice(ctx context.Context, sess *domain.Session, audio []byte, onSnapshot func(domain.Snapshot) error) (string, domain.Snapshot, error) {
	if v == nil || v.transcriber == nil {
		return "", domain.Snapshot{}, domain.ErrVoiceDisabled
	}
	ctx = log.ContextWithSessionID(ctx, sess.ID)

	question, err := v.transcriber.Transcribe(ctx, audio)
	if err != nil {
		return "", domain.Snapshot{}, fmt.Errorf("transcribe question: %w", err)
	}
	question = strings.TrimSpace(question)
	log.WithCtx(ctx).Debug("Question transcribed", zap.String("text", question))

	answer, err := v.chat.Ask(ctx, sess, question, onSnapshot)
	return question, answer, err
}

func (v *VoiceService) ReadAloud(ctx context.Context, sess *domain.Session) ([]byte, error) {
	if v == nil || v.synthesizer == nil {
		return nil, domain.ErrVoiceDisabled
	}
	turn, ok := sess.LastModelTurn()
	if !ok {
		return nil, domain.ErrNoAnswer
	}
	audio, err := v.synthesizer.Synthesize(log.ContextWithSessionID(ctx, sess.ID), turn.Text())
	if err != nil {
		return nil, fmt.Errorf("read answer aloud: %w", err)
	}
	return audio, nil
}
