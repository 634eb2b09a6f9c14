package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestMemoryStore_UploadAndDownload(t *testing.T) {
	store := NewMemoryStore("http://localhost:8000/api/v1")
	ctx := context.Background()

	doc, err := store.Upload(ctx, Document{
		FileName:    "xray.png",
		ContentType: "image/png",
		ReferralID:  "ref-1",
		CreatedBy:   "user_2abc",
	}, strings.NewReader("fake png bytes"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if doc.ID == "" {
		t.Fatal("expected generated id")
	}
	if doc.Size != int64(len("fake png bytes")) {
		t.Errorf("unexpected size %d", doc.Size)
	}
	if doc.Hash == "" {
		t.Error("expected content hash")
	}
	if want := "http://localhost:8000/api/v1/documents/" + doc.ID; doc.URL != want {
		t.Errorf("expected URL %s, got %s", want, doc.URL)
	}

	rc, meta, err := store.Download(ctx, doc.ID)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer rc.Close()
	content, _ := io.ReadAll(rc)
	if string(content) != "fake png bytes" {
		t.Errorf("unexpected content %q", content)
	}
	if meta.FileName != "xray.png" {
		t.Errorf("unexpected file name %q", meta.FileName)
	}
}

func TestMemoryStore_UploadValidation(t *testing.T) {
	store := NewMemoryStore("http://localhost:8000/api/v1")
	ctx := context.Background()

	_, err := store.Upload(ctx, Document{ContentType: "image/png"}, strings.NewReader("x"))
	if !errors.Is(err, ErrMissingFileName) {
		t.Errorf("expected ErrMissingFileName, got %v", err)
	}

	_, err = store.Upload(ctx, Document{FileName: "a.exe", ContentType: "application/x-msdownload"}, strings.NewReader("x"))
	if !errors.Is(err, ErrInvalidContentType) {
		t.Errorf("expected ErrInvalidContentType, got %v", err)
	}

	big := bytes.Repeat([]byte("a"), MaxFileSize+1)
	_, err = store.Upload(ctx, Document{FileName: "big.pdf", ContentType: "application/pdf"}, bytes.NewReader(big))
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestMemoryStore_DeleteAndNotFound(t *testing.T) {
	store := NewMemoryStore("http://localhost:8000/api/v1")
	ctx := context.Background()

	doc, err := store.Upload(ctx, Document{FileName: "lab.pdf", ContentType: "application/pdf"}, strings.NewReader("pdf"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if err := store.Delete(ctx, doc.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.GetMetadata(ctx, doc.ID); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, "missing"); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound for missing id, got %v", err)
	}
}

func TestMemoryStore_ListByReferral(t *testing.T) {
	store := NewMemoryStore("http://localhost:8000/api/v1")
	ctx := context.Background()

	for _, ref := range []string{"ref-1", "ref-1", "ref-2"} {
		if _, err := store.Upload(ctx, Document{
			FileName:    "doc.pdf",
			ContentType: "application/pdf",
			ReferralID:  ref,
		}, strings.NewReader("pdf")); err != nil {
			t.Fatalf("Upload: %v", err)
		}
	}

	docs, err := store.ListByReferral(ctx, "ref-1")
	if err != nil {
		t.Fatalf("ListByReferral: %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("expected 2 documents for ref-1, got %d", len(docs))
	}
}
