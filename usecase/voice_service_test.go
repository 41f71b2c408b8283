package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/cocoa-fruit/pdfchat/domain"
)

type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return f.text, f.err
}

type fakeSynthesizer struct {
	got string
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.got = text
	return []byte("ID3"), nil
}

func TestAskByVoice(t *testing.T) {
	chat := NewChatService(&scriptedLlm{fragments: []string{"Here's the answer."}})
	sess := newSessionWithDocument(t, chat)
	voice := NewVoiceService(chat, fakeTranscriber{text: " what year is it? "}, nil)

	question, answer, err := voice.AskByVoice(context.Background(), sess, []byte("RIFF"), nil)
	require.NoError(t, err)

	assert.Equal(t, "what year is it?", question)
	assert.Equal(t, "Here's the answer.", answer.Text())
	assert.Equal(t, 2, sess.Len())
}

func TestAskByVoiceErrors(t *testing.T) {
	chat := NewChatService(&scriptedLlm{})
	sess := newSessionWithDocument(t, chat)

	_, _, err := NewVoiceService(chat, nil, nil).AskByVoice(context.Background(), sess, nil, nil)
	assert.ErrorIs(t, err, domain.ErrVoiceDisabled)

	_, _, err = NewVoiceService(chat, fakeTranscriber{text: "  "}, nil).AskByVoice(context.Background(), sess, nil, nil)
	assert.ErrorIs(t, err, domain.ErrEmptyQuestion)

	boom := errors.New("bad audio")
	_, _, err = NewVoiceService(chat, fakeTranscriber{err: boom}, nil).AskByVoice(context.Background(), sess, nil, nil)
	assert.ErrorIs(t, err, boom)
}

func TestReadAloud(t *testing.T) {
	chat := NewChatService(&scriptedLlm{fragments: []string{"Forty", "-two"}})
	sess := newSessionWithDocument(t, chat)
	synth := &fakeSynthesizer{}
	voice := NewVoiceService(chat, nil, synth)

	_, err := voice.ReadAloud(context.Background(), sess)
	assert.ErrorIs(t, err, domain.ErrNoAnswer)

	_, err = chat.Ask(context.Background(), sess, "q", nil)
	require.NoError(t, err)

	audio, err := voice.ReadAloud(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, "ID3", string(audio))
	assert.Equal(t, "Forty-two", synth.got)

	var nilVoice *VoiceService
	_, err = nilVoice.ReadAloud(context.Background(), sess)
	assert.ErrorIs(t, err, domain.ErrVoiceDisabled)
}
