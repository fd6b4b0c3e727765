// Package search maintains the emergency-contact index. Writes are
// best effort: a failed index update never fails the write that caused
// it, since ScyllaDB remains the source of truth.
package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"guardian-service/internal/client"
	"guardian-service/internal/model"
	"guardian-service/internal/util"
)

type ContactIndex struct {
	es    *client.ESClient
	index string
}

type contactDocument struct {
	UserID       string `json:"user_id"`
	ContactID    string `json:"contact_id"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship,omitempty"`
}

type searchResult struct {
	Hits struct {
		Hits []struct {
			Source contactDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func NewContactIndex(es *client.ESClient, index string) *ContactIndex {
	return &ContactIndex{
		es:    es,
		index: index,
	}
}

// Index upserts a contact document keyed by "<userID>:<contactID>".
func (i *ContactIndex) Index(ctx context.Context, userID string, contact *model.EmergencyContact) {
	doc := contactDocument{
		UserID:       userID,
		ContactID:    contact.ID,
		Name:         contact.Name,
		Phone:        contact.Phone,
		Relationship: contact.Relationship,
	}

	res, err := i.es.IndexDocument(i.index, docID(userID, contact.ID), doc)
	if err != nil {
		util.Warn("Failed to index contact",
			zap.String("user_id", userID),
			zap.String("contact_id", contact.ID),
			zap.Error(err))
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		util.Warn("Contact index rejected document",
			zap.String("user_id", userID),
			zap.String("contact_id", contact.ID),
			zap.String("status", res.Status()))
	}
}

// Remove drops a contact document. Missing documents are fine.
func (i *ContactIndex) Remove(ctx context.Context, userID, contactID string) {
	res, err := i.es.DeleteDocument(i.index, docID(userID, contactID))
	if err != nil {
		util.Warn("Failed to remove contact from index",
			zap.String("user_id", userID),
			zap.String("contact_id", contactID),
			zap.Error(err))
		return
	}
	res.Body.Close()
}

// Search finds a user's contacts matching the term against name and
// phone, fuzzily on the name.
func (i *ContactIndex) Search(ctx context.Context, userID, term string, limit int) ([]model.EmergencyContact, error) {
	if limit <= 0 {
		limit = 20
	}

	query := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []map[string]interface{}{
					{"term": map[string]interface{}{"user_id": userID}},
				},
				"must": []map[string]interface{}{
					{"multi_match": map[string]interface{}{
						"query":     term,
						"fields":    []string{"name^2", "phone"},
						"fuzziness": "AUTO",
					}},
				},
			},
		},
	}

	res, err := i.es.Search(ctx, i.index, query)
	if err != nil {
		return nil, fmt.Errorf("contact search failed: %w", err)
	}

	var result searchResult
	if err := i.es.ParseResponse(res, &result); err != nil {
		return nil, fmt.Errorf("contact search failed: %w", err)
	}

	contacts := make([]model.EmergencyContact, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		contacts = append(contacts, model.EmergencyContact{
			ID:           hit.Source.ContactID,
			Name:         hit.Source.Name,
			Phone:        hit.Source.Phone,
			Relationship: hit.Source.Relationship,
		})
	}
	return contacts, nil
}

func docID(userID, contactID string) string {
	return userID + ":" + contactID
}
