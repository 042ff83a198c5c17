// Package recipients turns uploaded contact lists into campaign recipients.
package recipients

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	appErrors "github.com/unclebandit/mailcampaign/internal/errors"
	"github.com/unclebandit/mailcampaign/internal/model"
)

// ParseCSV reads a header row followed by name/email rows. Column lookup
// accepts "email"/"Email" and "name"/"Name"; rows without an email are
// skipped. An input that yields no recipient is a validation error.
func ParseCSV(r io.Reader) ([]model.Recipient, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read contacts: %w", err)
	}
	text := strings.ToValidUTF8(string(data), "")
	text = strings.TrimPrefix(text, "\ufeff")

	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, appErrors.NewValidation("contacts_file", "no valid contacts found in CSV")
		}
		return nil, appErrors.NewValidation("contacts_file", err.Error())
	}

	emailCol := column(header, "email", "Email")
	nameCol := column(header, "name", "Name")
	if emailCol < 0 {
		return nil, appErrors.NewValidation("contacts_file", "missing email column")
	}

	contacts := []model.Recipient{}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, appErrors.NewValidation("contacts_file", err.Error())
		}

		email := field(record, emailCol)
		if email == "" {
			continue
		}
		contacts = append(contacts, model.Recipient{Name: field(record, nameCol), Email: email})
	}

	if len(contacts) == 0 {
		return nil, appErrors.NewValidation("contacts_file", "no valid contacts found in CSV")
	}
	return contacts, nil
}

func column(header []string, names ...string) int {
	for _, name := range names {
		for i, h := range header {
			if strings.TrimSpace(h) == name {
				return i
			}
		}
	}
	return -1
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
