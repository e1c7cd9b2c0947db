package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prashant-hada-dev/sales-agent-proto/internal/dto"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scan() *bytes.Reader {
	return bytes.NewReader(bytes.Repeat([]byte{0x89}, 2048))
}

func TestSubmit_validDocumentMovesToPayment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.user(t, sessionID("s"))
	conn := env.connect("s")

	res, err := env.documents.Submit(ctx, u.ID, "pan.png", scan())
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.False(t, res.Superseded)
	assert.NotEmpty(t, res.DocumentID)

	stored := env.reload(t, u)
	require.NotNil(t, stored.Document)
	assert.Equal(t, res.DocumentID, stored.Document.ID)
	assert.True(t, stored.Document.Verified)
	assert.False(t, stored.Document.Pending)
	assert.Equal(t, "image/png", stored.Document.MimeType)
	assert.FileExists(t, stored.Document.FilePath)
	assert.Len(t, stored.Documents, 1)
	assert.Equal(t, models.StagePayment, CurrentStage(stored))

	links := conn.ofType(dto.TypePaymentLink)
	require.Len(t, links, 1)
	assert.Equal(t, stored.Payment.Link, links[0].Link)

	texts := conn.ofType(dto.TypeMessage)
	require.Len(t, texts, 2)
	assert.Equal(t, documentAcceptedText, texts[0].Text)
	assert.Contains(t, texts[1].Text, stored.Payment.Link)
	assert.Contains(t, texts[1].Text, "60 minutes")

	history, err := env.conversations.History(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestSubmit_invalidDocumentAsksAgain(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.analyzer = analyzerFunc(func(context.Context, models.DocumentRecord) (DocumentVerdict, error) {
		return DocumentVerdict{Analysis: "The image is blurry."}, nil
	})
	u := env.user(t, sessionID("s"))
	conn := env.connect("s")

	res, err := env.documents.Submit(ctx, u.ID, "scan.pdf", scan())
	require.NoError(t, err)
	assert.False(t, res.IsValid)

	stored := env.reload(t, u)
	assert.True(t, stored.Document.Pending)
	assert.True(t, stored.Document.Analyzed)
	assert.Equal(t, models.StageDocumentVerification, CurrentStage(stored))
	assert.Nil(t, stored.Payment)

	assert.Len(t, conn.ofType(dto.TypeShowDocumentUpload), 1)
	texts := conn.ofType(dto.TypeMessage)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0].Text, "The image is blurry.")
}

func TestSubmit_rejectsBeforeStoring(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.user(t, sessionID("s"))

	_, err := env.documents.Submit(ctx, u.ID, "malware.exe", scan())
	assert.ErrorIs(t, err, ErrUnsupportedDocument)

	_, err = env.documents.Submit(ctx, u.ID, "empty.jpg", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyDocument)

	assert.Nil(t, env.reload(t, u).Document)
}

func TestSubmit_analyzerTimeoutKeepsVerifiedDocument(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.user(t, sessionID("s"))

	first, err := env.documents.Submit(ctx, u.ID, "pan.png", scan())
	require.NoError(t, err)
	require.True(t, first.IsValid)
	require.Equal(t, models.StagePayment, CurrentStage(env.reload(t, u)))

	env.analyzer = analyzerFunc(func(context.Context, models.DocumentRecord) (DocumentVerdict, error) {
		return DocumentVerdict{}, context.DeadlineExceeded
	})
	second, err := env.documents.Submit(ctx, u.ID, "aadhaar.png", scan())
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	stored := env.reload(t, u)
	require.NotNil(t, stored.Document)
	assert.Equal(t, first.DocumentID, stored.Document.ID)
	assert.True(t, stored.Document.Verified)
	assert.False(t, stored.Document.Pending)
	assert.Equal(t, models.StagePayment, CurrentStage(stored))

	// the failed submission is still on record
	require.Len(t, stored.Documents, 2)
	assert.Equal(t, second.DocumentID, stored.Documents[1].DocumentID)
}

func TestSubmit_analyzerFailureOnFirstUploadLeavesNoDocument(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.analyzer = analyzerFunc(func(context.Context, models.DocumentRecord) (DocumentVerdict, error) {
		return DocumentVerdict{}, errors.New("connection reset")
	})
	u := env.user(t, sessionID("s"))
	before := CurrentStage(env.reload(t, u))

	_, err := env.documents.Submit(ctx, u.ID, "pan.png", scan())
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	stored := env.reload(t, u)
	assert.Nil(t, stored.Document)
	assert.Equal(t, before, CurrentStage(stored))
}

func TestSubmit_staleAnalysisIsDiscarded(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	started := make(chan struct{})
	release := make(chan struct{})
	env.analyzer = analyzerFunc(func(_ context.Context, doc models.DocumentRecord) (DocumentVerdict, error) {
		if doc.FileName == "first.png" {
			close(started)
			<-release
			return DocumentVerdict{IsValid: true, Analysis: "valid and clear"}, nil
		}
		return DocumentVerdict{Analysis: "blurry"}, nil
	})
	u := env.user(t, sessionID("s"))

	type outcome struct {
		res DocumentResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := env.documents.Submit(ctx, u.ID, "first.png", scan())
		done <- outcome{res, err}
	}()
	<-started

	second, err := env.documents.Submit(ctx, u.ID, "second.png", scan())
	require.NoError(t, err)
	close(release)
	first := <-done
	require.NoError(t, first.err)

	assert.True(t, first.res.Superseded)
	assert.False(t, second.Superseded)

	stored := env.reload(t, u)
	assert.Equal(t, second.DocumentID, stored.Document.ID)
	assert.False(t, stored.Document.Verified)
	assert.Nil(t, stored.Payment)
	assert.Len(t, stored.Documents, 2)
}

func TestRuleBasedAnalyzer(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, size int) models.DocumentRecord {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{1}, size), 0o600))
		return models.DocumentRecord{FileName: name, FilePath: path}
	}

	v, err := RuleBasedAnalyzer{}.Analyze(context.Background(), write("id.jpg", 4096))
	require.NoError(t, err)
	assert.True(t, v.IsValid)

	v, err = RuleBasedAnalyzer{}.Analyze(context.Background(), write("tiny.png", 10))
	require.NoError(t, err)
	assert.False(t, v.IsValid)

	v, err = RuleBasedAnalyzer{}.Analyze(context.Background(), write("notes.txt", 4096))
	require.NoError(t, err)
	assert.False(t, v.IsValid)
}

func TestHeuristicVerdict(t *testing.T) {
	assert.True(t, HeuristicVerdict("The PAN card is valid and clear.").IsValid)
	assert.False(t, HeuristicVerdict("Valid document but blurry, not clear").IsValid)
	assert.False(t, HeuristicVerdict("This is an invalid document, clear photo").IsValid)
	assert.False(t, HeuristicVerdict("Looks fine").IsValid)
}

func TestSupportedFormat(t *testing.T) {
	mime, ok := SupportedFormat("Scan.JPEG")
	assert.True(t, ok)
	assert.Equal(t, "image/jpeg", mime)

	_, ok = SupportedFormat("doc.docx")
	assert.False(t, ok)
}
