package gcp

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/tableflow/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
// It centralizes client creation for all services.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// FirestoreTracker stores document records and run reports, one Firestore
// document per pipeline document and per run.
type FirestoreTracker struct {
	client    *firestore.Client
	documents string
	runs      string
}

// NewFirestoreTracker uses the given collections for documents and runs.
func NewFirestoreTracker(client *firestore.Client, documents, runs string) *FirestoreTracker {
	return &FirestoreTracker{client: client, documents: documents, runs: runs}
}

// RecordDocument overwrites the record of doc with its current state.
func (t *FirestoreTracker) RecordDocument(ctx context.Context, doc *models.Document) error {
	if _, err := t.client.Collection(t.documents).Doc(doc.ID).Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to record document %s: %w", doc.ID, err)
	}
	return nil
}

// RecordRun stores a finished run report under its run ID.
func (t *FirestoreTracker) RecordRun(ctx context.Context, report *models.RunReport) error {
	if _, err := t.client.Collection(t.runs).Doc(report.RunID).Set(ctx, report); err != nil {
		return fmt.Errorf("failed to record run %s: %w", report.RunID, err)
	}
	return nil
}

// FindByHash returns the ID of a document already extracted from content
// with the given hash.
func (t *FirestoreTracker) FindByHash(ctx context.Context, fileHash string) (string, bool, error) {
	docs, err := t.client.Collection(t.documents).
		Where("fileHash", "==", fileHash).
		Where("status", "==", string(models.StatusExtracted)).
		Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return "", false, fmt.Errorf("failed to query for duplicates: %w", err)
	}
	if len(docs) > 0 {
		return docs[0].Ref.ID, true, nil
	}
	return "", false, nil
}

// MarkFailed records a failure that happened outside the pipeline, such as
// a download or upload error.
func (t *FirestoreTracker) MarkFailed(ctx context.Context, documentID string, reason models.Reason, details string) error {
	updates := []firestore.Update{
		{Path: "status", Value: string(models.StatusFailed)},
		{Path: "failureReason", Value: string(reason)},
		{Path: "updatedAt", Value: time.Now().UTC()},
	}
	if details != "" {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: details})
	}
	_, err := t.client.Collection(t.documents).Doc(documentID).Update(ctx, updates)
	return err
}
