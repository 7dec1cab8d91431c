package match

import (
	"strings"

	pstrings "skiptrace/pkg/platform/strings"

	"skiptrace/internal/skiptrace"
)

// MergeAssociatedContacts folds the phones, emails, and addresses of a
// business owner's associated persons (registered agents, officers) into the
// business candidate, deduplicated by normalized value. A business owner's
// apparent contact-richness is the union of its own and its associates'
// contacts.
func MergeAssociatedContacts(business skiptrace.OwnerCandidate, associates []skiptrace.OwnerCandidate) skiptrace.OwnerCandidate {
	phones := append([]skiptrace.Phone{}, business.Phones...)
	emails := append([]string{}, business.Emails...)
	addresses := append([]skiptrace.Address{}, business.Addresses...)

	for _, assoc := range associates {
		phones = append(phones, assoc.Phones...)
		emails = append(emails, assoc.Emails...)
		addresses = append(addresses, assoc.Addresses...)
	}

	business.Phones = DedupePhones(phones)
	business.Emails = pstrings.DedupeAndTrimLower(emails)
	business.Addresses = dedupeAddresses(addresses)
	return business
}

// DedupePhones removes duplicate numbers by their digit form, keeping the
// first occurrence. Compliance flags are OR-merged across duplicates so a
// DNC or litigator flag on any variant of a number survives.
func DedupePhones(phones []skiptrace.Phone) []skiptrace.Phone {
	if len(phones) == 0 {
		return phones
	}

	index := make(map[string]int, len(phones))
	result := make([]skiptrace.Phone, 0, len(phones))

	for _, p := range phones {
		key := p.NormalizedNumber()
		if key == "" {
			continue
		}
		if i, ok := index[key]; ok {
			result[i].DNC = result[i].DNC || p.DNC
			result[i].Litigator = result[i].Litigator || p.Litigator
			continue
		}
		index[key] = len(result)
		result = append(result, p)
	}

	return result
}

// DedupeEmails lower-cases, trims, and removes duplicate email addresses.
func DedupeEmails(emails []string) []string {
	return pstrings.DedupeAndTrimLower(emails)
}

func dedupeAddresses(addresses []skiptrace.Address) []skiptrace.Address {
	if len(addresses) == 0 {
		return addresses
	}

	seen := make(map[string]struct{}, len(addresses))
	result := make([]skiptrace.Address, 0, len(addresses))

	for _, a := range addresses {
		key := a.Key()
		if strings.TrimSpace(key) == "" {
			continue
		}
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			result = append(result, a)
		}
	}

	return result
}
