package utils

import (
	"fmt"
	"strings"
)

// MaskMaxLength is the longest mask string accepted by validation.
const MaskMaxLength = 255

// MaskPosition represents a single position in a hashcat mask
type MaskPosition struct {
	Token     string // e.g., "?l", "?u", "?d", "?1", or a literal character
	IsLiteral bool   // true if this is a literal character, false if it's a placeholder
}

// ParseMask parses a hashcat mask into individual positions.
// Placeholders are 2 characters: ?l, ?u, ?d, ?s, ?a, ?b, ?h, ?H, ?1-?4.
// Everything else is treated as a literal character.
func ParseMask(mask string) ([]MaskPosition, error) {
	if mask == "" {
		return nil, fmt.Errorf("mask cannot be empty")
	}
	if len(mask) > MaskMaxLength {
		return nil, fmt.Errorf("mask exceeds maximum length (%d characters)", MaskMaxLength)
	}

	var positions []MaskPosition
	i := 0

	for i < len(mask) {
		if mask[i] == '?' {
			if i+1 >= len(mask) {
				return nil, fmt.Errorf("incomplete placeholder at end of mask")
			}

			token := mask[i : i+2]
			if !isValidToken(token) {
				return nil, fmt.Errorf("invalid mask token: %s", token)
			}

			positions = append(positions, MaskPosition{
				Token:     token,
				IsLiteral: false,
			})
			i += 2
		} else {
			positions = append(positions, MaskPosition{
				Token:     string(mask[i]),
				IsLiteral: true,
			})
			i++
		}
	}

	return positions, nil
}

// isValidToken checks if a 2-character string is a valid hashcat placeholder
func isValidToken(token string) bool {
	if len(token) != 2 || token[0] != '?' {
		return false
	}

	switch token[1] {
	case 'l', 'u', 'd', 's', 'a', 'b', 'h', 'H':
		return true
	case '1', '2', '3', '4':
		return true
	default:
		return false
	}
}

// ValidateMask checks a mask for syntax correctness without computing
// anything. Returns nil for a valid mask.
func ValidateMask(mask string) error {
	if strings.TrimSpace(mask) == "" {
		return fmt.Errorf("mask cannot be empty")
	}
	_, err := ParseMask(mask)
	return err
}

// MaskKeyspace calculates the total number of candidates for a mask by
// multiplying the charset cardinality of each position. Literal characters
// contribute a factor of 1, as does an unbound custom charset token.
// An empty mask yields keyspace 0.
func MaskKeyspace(mask string, customCharsets map[string]string) (int64, error) {
	if mask == "" {
		return 0, nil
	}

	positions, err := ParseMask(mask)
	if err != nil {
		return 0, fmt.Errorf("failed to parse mask: %w", err)
	}

	var keyspace int64 = 1
	for _, pos := range positions {
		if pos.IsLiteral {
			continue
		}
		keyspace *= charsetCardinality(pos.Token, customCharsets)
	}

	return keyspace, nil
}

// IncrementKeyspace sums the keyspaces of every prefix of the mask with
// length in [minLength, maxLength]. Used for increment-mode mask attacks.
func IncrementKeyspace(mask string, customCharsets map[string]string, minLength, maxLength int) (int64, error) {
	if mask == "" {
		return 0, nil
	}
	if minLength < 1 {
		return 0, fmt.Errorf("min_length must be at least 1")
	}
	if maxLength < minLength {
		return 0, fmt.Errorf("max_length (%d) must be >= min_length (%d)", maxLength, minLength)
	}

	positions, err := ParseMask(mask)
	if err != nil {
		return 0, fmt.Errorf("failed to parse mask: %w", err)
	}

	if minLength > len(positions) {
		return 0, fmt.Errorf("min_length (%d) exceeds mask length (%d)", minLength, len(positions))
	}
	if maxLength > len(positions) {
		maxLength = len(positions)
	}

	var total int64
	for length := minLength; length <= maxLength; length++ {
		var keyspace int64 = 1
		for _, pos := range positions[:length] {
			if pos.IsLiteral {
				continue
			}
			keyspace *= charsetCardinality(pos.Token, customCharsets)
		}
		total += keyspace
	}

	return total, nil
}

// GenerateIncrementLayers generates masks for each length from min to max.
// For inverse mode the layers run longest to shortest.
func GenerateIncrementLayers(mask string, minLength, maxLength int, isInverse bool) ([]string, error) {
	if minLength < 1 {
		return nil, fmt.Errorf("min_length must be at least 1")
	}
	if maxLength < minLength {
		return nil, fmt.Errorf("max_length (%d) must be >= min_length (%d)", maxLength, minLength)
	}

	positions, err := ParseMask(mask)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mask: %w", err)
	}

	if minLength > len(positions) {
		return nil, fmt.Errorf("min_length (%d) exceeds mask length (%d)", minLength, len(positions))
	}
	if maxLength > len(positions) {
		maxLength = len(positions)
	}

	var layers []string
	for length := minLength; length <= maxLength; length++ {
		var sb strings.Builder
		for _, pos := range positions[:length] {
			sb.WriteString(pos.Token)
		}
		layers = append(layers, sb.String())
	}

	if isInverse {
		for i, j := 0, len(layers)-1; i < j; i, j = i+1, j-1 {
			layers[i], layers[j] = layers[j], layers[i]
		}
	}

	return layers, nil
}

// CharsetDiversity counts the distinct placeholder classes used by a mask.
// Literals do not count toward diversity.
func CharsetDiversity(mask string, customCharsets map[string]string) (int, error) {
	if mask == "" {
		return 0, nil
	}
	positions, err := ParseMask(mask)
	if err != nil {
		return 0, fmt.Errorf("failed to parse mask: %w", err)
	}

	seen := make(map[string]struct{})
	for _, pos := range positions {
		if pos.IsLiteral {
			continue
		}
		seen[pos.Token] = struct{}{}
	}
	return len(seen), nil
}

// charsetCardinality returns the number of characters a placeholder expands
// to. Custom charset tokens use the length of their binding, or 1 if unbound.
func charsetCardinality(token string, customCharsets map[string]string) int64 {
	if bound, ok := customCharsets[token]; ok && bound != "" {
		return int64(len(bound))
	}

	switch token {
	case "?l": // lowercase letters (a-z)
		return 26
	case "?u": // uppercase letters (A-Z)
		return 26
	case "?d": // digits (0-9)
		return 10
	case "?s": // special characters
		return 33
	case "?a": // all printable ASCII
		return 95
	case "?b": // all bytes (0x00-0xff)
		return 256
	case "?h", "?H": // hex
		return 16
	default:
		// Unbound custom charset (?1-?4) contributes nothing
		return 1
	}
}
