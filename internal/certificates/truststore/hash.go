package truststore

import (
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/binary"
	"fmt"
	"strings"
)

// subjectHash computes the hash OpenSSL's -subject_hash prints for a
// certificate subject: SHA-1 over the canonical subject encoding, with the
// first four digest bytes read little-endian. Directory-based certificate
// lookup resolves anchors through <hash>.0 links named with this value.
func subjectHash(certificate *x509.Certificate) (string, error) {
	canonical, encodeErr := canonicalSubjectEncoding(certificate.RawSubject)
	if encodeErr != nil {
		return "", fmt.Errorf("canonicalize subject: %w", encodeErr)
	}
	digest := sha1.Sum(canonical)
	return fmt.Sprintf("%08x", binary.LittleEndian.Uint32(digest[:4])), nil
}

type canonicalAttribute struct {
	Type  asn1.ObjectIdentifier
	Value string `asn1:"utf8"`
}

// canonicalSubjectEncoding re-encodes the subject the way OpenSSL's
// x509_name_canon does: every attribute value trimmed, space-collapsed,
// lowercased, and stored as a UTF8String, with the outer SEQUENCE header
// stripped so only the concatenated relative-name sets are hashed.
func canonicalSubjectEncoding(rawSubject []byte) ([]byte, error) {
	var sequence pkix.RDNSequence
	if _, unmarshalErr := asn1.Unmarshal(rawSubject, &sequence); unmarshalErr != nil {
		return nil, unmarshalErr
	}
	var canonical []byte
	for _, relativeName := range sequence {
		attributes := make([]canonicalAttribute, 0, len(relativeName))
		for _, attribute := range relativeName {
			value, isString := attribute.Value.(string)
			if !isString {
				return nil, fmt.Errorf("subject attribute %v is not a string", attribute.Type)
			}
			attributes = append(attributes, canonicalAttribute{
				Type:  attribute.Type,
				Value: canonicalizeAttributeValue(value),
			})
		}
		encoded, marshalErr := asn1.MarshalWithParams(attributes, "set")
		if marshalErr != nil {
			return nil, marshalErr
		}
		canonical = append(canonical, encoded...)
	}
	return canonical, nil
}

// canonicalizeAttributeValue trims leading and trailing whitespace, collapses
// interior whitespace runs to a single space, and lowercases ASCII letters,
// matching OpenSSL's canonical string form byte for byte.
func canonicalizeAttributeValue(value string) string {
	var builder strings.Builder
	pendingSpace := false
	for index := 0; index < len(value); index++ {
		character := value[index]
		if isASCIIWhitespace(character) {
			pendingSpace = builder.Len() > 0
			continue
		}
		if pendingSpace {
			builder.WriteByte(' ')
			pendingSpace = false
		}
		if character >= 'A' && character <= 'Z' {
			character += 'a' - 'A'
		}
		builder.WriteByte(character)
	}
	return builder.String()
}

func isASCIIWhitespace(character byte) bool {
	switch character {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	default:
		return false
	}
}
