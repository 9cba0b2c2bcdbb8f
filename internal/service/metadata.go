package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Metadata keys attached to every checkout session.  The processor stores
// metadata as string values, so the item list travels as a JSON string.
const (
	metaKeyVersion = "v"
	metaKeyUserID  = "userId"
	metaKeyItems   = "items"

	metadataVersion = "1"

	// maxMetadataValueLen is the processor's limit for one metadata value.
	maxMetadataValueLen = 500
)

// CheckoutMetadata is what fulfillment needs to turn a paid session back
// into purchases.
type CheckoutMetadata struct {
	UserID uint64
	Items  []MetadataItem
}

// MetadataItem is one purchased book and its quantity.
type MetadataItem struct {
	BookID   uint64
	Quantity uint32
}

type wireItem struct {
	BookID   string `json:"bookId"`
	Quantity int64  `json:"quantity"`
}

// EncodeMetadata renders m into the versioned string map sent with the
// session.  ErrCartTooLarge when the item list exceeds the value limit.
func EncodeMetadata(m CheckoutMetadata) (map[string]string, error) {
	if m.UserID == 0 {
		return nil, errors.New("metadata: user id is required")
	}
	if len(m.Items) == 0 {
		return nil, ErrEmptyCart
	}
	wire := make([]wireItem, 0, len(m.Items))
	for _, it := range m.Items {
		if it.BookID == 0 || it.Quantity < 1 {
			return nil, errors.Errorf("metadata: invalid item book=%d quantity=%d", it.BookID, it.Quantity)
		}
		wire = append(wire, wireItem{BookID: strconv.FormatUint(it.BookID, 10), Quantity: int64(it.Quantity)})
	}
	items, err := json.Marshal(wire)
	if err != nil {
		return nil, errors.Wrap(err, "metadata: encode items")
	}
	if len(items) > maxMetadataValueLen {
		return nil, errors.Wrapf(ErrCartTooLarge, "items metadata is %d bytes", len(items))
	}
	return map[string]string{
		metaKeyVersion: metadataVersion,
		metaKeyUserID:  strconv.FormatUint(m.UserID, 10),
		metaKeyItems:   string(items),
	}, nil
}

// DecodeMetadata parses session metadata strictly.  Every failure wraps
// ErrMalformedEvent.
func DecodeMetadata(md map[string]string) (*CheckoutMetadata, error) {
	malformed := func(format string, args ...interface{}) error {
		return errors.Wrap(ErrMalformedEvent, "metadata: "+fmt.Sprintf(format, args...))
	}

	var unknown []string
	for k := range md {
		switch k {
		case metaKeyVersion, metaKeyUserID, metaKeyItems:
		default:
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, malformed("unknown keys %s", strings.Join(unknown, ","))
	}
	for _, k := range []string{metaKeyVersion, metaKeyUserID, metaKeyItems} {
		if _, ok := md[k]; !ok {
			return nil, malformed("missing key %q", k)
		}
	}
	if md[metaKeyVersion] != metadataVersion {
		return nil, malformed("unsupported version %q", md[metaKeyVersion])
	}
	userID, err := parseID(md[metaKeyUserID])
	if err != nil {
		return nil, malformed("bad userId %q", md[metaKeyUserID])
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(md[metaKeyItems])))
	dec.DisallowUnknownFields()
	var wire []*wireItem
	if err := dec.Decode(&wire); err != nil {
		return nil, malformed("items: %v", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, malformed("items: trailing data")
	}
	if len(wire) == 0 {
		return nil, malformed("items: empty list")
	}

	out := &CheckoutMetadata{UserID: userID, Items: make([]MetadataItem, 0, len(wire))}
	seen := make(map[uint64]bool, len(wire))
	for i, w := range wire {
		if w == nil {
			return nil, malformed("items[%d]: null", i)
		}
		bookID, err := parseID(w.BookID)
		if err != nil {
			return nil, malformed("items[%d]: bad bookId %q", i, w.BookID)
		}
		if w.Quantity < 1 || w.Quantity > int64(^uint32(0)) {
			return nil, malformed("items[%d]: bad quantity %d", i, w.Quantity)
		}
		if seen[bookID] {
			return nil, malformed("items[%d]: duplicate bookId %d", i, bookID)
		}
		seen[bookID] = true
		out.Items = append(out.Items, MetadataItem{BookID: bookID, Quantity: uint32(w.Quantity)})
	}
	return out, nil
}

// parseID accepts a positive base-10 integer without sign or padding.
func parseID(s string) (uint64, error) {
	if s == "" || s[0] == '+' || (len(s) > 1 && s[0] == '0') {
		return 0, errors.Errorf("invalid id %q", s)
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, errors.New("id must be positive")
	}
	return id, nil
}
