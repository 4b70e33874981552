package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	ttypes "github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/hyperjump/cardex/internal/models"
	"github.com/hyperjump/cardex/internal/objectstore"
)

type fakeTextract struct {
	in     *textract.DetectDocumentTextInput
	blocks []ttypes.Block
	err    error
}

func (f *fakeTextract) DetectDocumentText(_ context.Context, in *textract.DetectDocumentTextInput, _ ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &textract.DetectDocumentTextOutput{Blocks: f.blocks}, nil
}

func line(s string) ttypes.Block {
	return ttypes.Block{BlockType: ttypes.BlockTypeLine, Text: aws.String(s)}
}

func word(s string) ttypes.Block {
	return ttypes.Block{BlockType: ttypes.BlockTypeWord, Text: aws.String(s)}
}

func TestTextract_JoinsLines(t *testing.T) {
	api := &fakeTextract{blocks: []ttypes.Block{
		{BlockType: ttypes.BlockTypePage},
		line("Name: Ahmed"), word("Name:"), word("Ahmed"),
		line("ID: 784-1985-1234567-1"),
	}}
	r := newTextractRecognizer(api, nil)
	loc := objectstore.Locator{Scheme: "s3", Bucket: "b", Key: "cards/r/front.jpg"}
	text, err := r.Recognize(context.Background(), loc)
	if err != nil {
		t.Fatal(err)
	}
	if text != "Name: Ahmed\nID: 784-1985-1234567-1" {
		t.Errorf("text = %q", text)
	}
	if api.in.Document.S3Object == nil || aws.ToString(api.in.Document.S3Object.Name) != "cards/r/front.jpg" {
		t.Error("S3 objects should be referenced, not uploaded")
	}
}

func TestTextract_SendsBytesForLocalObjects(t *testing.T) {
	store, _ := objectstore.NewFSStore(t.TempDir())
	loc, _ := store.Put(context.Background(), "r/back.png", []byte("png-bytes"), "image/png")
	api := &fakeTextract{blocks: []ttypes.Block{line("Occupation: Pilot")}}
	if _, err := newTextractRecognizer(api, store).Recognize(context.Background(), loc); err != nil {
		t.Fatal(err)
	}
	if string(api.in.Document.Bytes) != "png-bytes" {
		t.Error("local objects should be sent inline")
	}
}

func TestTextract_Failures(t *testing.T) {
	loc := objectstore.Locator{Scheme: "s3", Bucket: "b", Key: "k.jpg"}
	_, err := newTextractRecognizer(&fakeTextract{err: errors.New("throttled")}, nil).Recognize(context.Background(), loc)
	if !errors.Is(err, models.ErrOCRFailure) {
		t.Errorf("service error: got %v", err)
	}
	_, err = newTextractRecognizer(&fakeTextract{blocks: []ttypes.Block{word("x")}}, nil).Recognize(context.Background(), loc)
	if !errors.Is(err, models.ErrOCRFailure) {
		t.Errorf("no lines: got %v", err)
	}
}

func TestMistral_InlinesLocalObjects(t *testing.T) {
	var got mistralRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/ocr" || r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("unexpected request %s auth=%q", r.URL.Path, r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = io.WriteString(w, `{"pages":[{"index":0,"markdown":"Employer: ACME"},{"index":1,"markdown":"Occupation: Pilot"}]}`)
	}))
	defer srv.Close()

	store, _ := objectstore.NewFSStore(t.TempDir())
	loc, _ := store.Put(context.Background(), "r/back.png", []byte("png"), "image/png")
	r := NewMistralRecognizer(MistralConfig{APIKey: "key", BaseURL: srv.URL}, store)
	text, err := r.Recognize(context.Background(), loc)
	if err != nil {
		t.Fatal(err)
	}
	if text != "Employer: ACME\n\nOccupation: Pilot" {
		t.Errorf("text = %q", text)
	}
	if got.Model != DefaultMistralModel || got.Document.Type != "image_url" ||
		!strings.HasPrefix(got.Document.ImageURL, "data:image/png;base64,") {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestMistral_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"bad key"}`)
	}))
	defer srv.Close()
	store, _ := objectstore.NewFSStore(t.TempDir())
	loc, _ := store.Put(context.Background(), "r/front.jpg", []byte("jpg"), "image/jpeg")
	_, err := NewMistralRecognizer(MistralConfig{APIKey: "x", BaseURL: srv.URL}, store).Recognize(context.Background(), loc)
	if !errors.Is(err, models.ErrOCRFailure) || !strings.Contains(err.Error(), "401") {
		t.Errorf("expected OCR failure with status, got %v", err)
	}
}

func TestLocal_ImageWithoutTesseract(t *testing.T) {
	if TesseractAvailable {
		t.Skip("built with tesseract")
	}
	store, _ := objectstore.NewFSStore(t.TempDir())
	loc, _ := store.Put(context.Background(), "r/front.jpg", []byte("jpg"), "image/jpeg")
	_, err := NewLocalRecognizer(store, "").Recognize(context.Background(), loc)
	if !errors.Is(err, models.ErrOCRFailure) || !errors.Is(err, ErrTesseractNotEnabled) {
		t.Errorf("got %v", err)
	}
}

func TestLocal_InvalidPDF(t *testing.T) {
	store, _ := objectstore.NewFSStore(t.TempDir())
	loc, _ := store.Put(context.Background(), "r/front.pdf", []byte("not a pdf"), "application/pdf")
	_, err := NewLocalRecognizer(store, "eng").Recognize(context.Background(), loc)
	if !errors.Is(err, models.ErrOCRFailure) {
		t.Errorf("got %v", err)
	}
}

func TestRequiresAPIKey(t *testing.T) {
	if !RequiresAPIKey(ProviderMistral) || RequiresAPIKey(ProviderTextract) || RequiresAPIKey(ProviderLocal) {
		t.Error("only the mistral provider authenticates with its own key")
	}
}
