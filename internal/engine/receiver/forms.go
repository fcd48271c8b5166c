package receiver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"beacon/internal/platform/entitystore"
)

// FormsNormalizer handles lead-capture form providers. A submission with an
// email is upserted into contacts: update by email when the contact exists,
// create otherwise.
type FormsNormalizer struct {
	store *entitystore.Store
}

func NewFormsNormalizer(store *entitystore.Store) *FormsNormalizer {
	return &FormsNormalizer{store: store}
}

type formSubmission struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Form  string `json:"form"`
}

func (n *FormsNormalizer) Normalize(ctx context.Context, payload []byte, _ map[string]string) (*Result, error) {
	var sub formSubmission
	if err := decodePayload(payload, &sub); err != nil {
		return nil, fmt.Errorf("invalid form submission: %w", err)
	}
	if sub.Email == "" {
		return nil, fmt.Errorf("form submission missing email")
	}

	fields := map[string]interface{}{
		"email":  sub.Email,
		"source": "form:" + sub.Form,
	}
	if sub.Name != "" {
		fields["name"] = sub.Name
	}
	if sub.Phone != "" {
		fields["phone"] = sub.Phone
	}

	affected, err := n.store.UpdateByFilter(ctx, "contacts", map[string]interface{}{"email": sub.Email}, fields)
	if err != nil {
		return nil, err
	}
	if affected > 0 {
		return &Result{
			Summary:  "updated existing contact",
			Entities: []EntityChange{{Collection: "contacts", Operation: "updated"}},
		}, nil
	}

	id, err := n.store.Create(ctx, "contacts", fields)
	if err != nil {
		return nil, err
	}
	return &Result{
		Summary:  "created contact from form submission",
		Entities: []EntityChange{{Collection: "contacts", EntityID: id, Operation: "created"}},
	}, nil
}

func decodePayload(payload []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(payload))
	return dec.Decode(v)
}
