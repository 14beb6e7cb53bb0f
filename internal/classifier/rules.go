package classifier

import (
	"strings"

	"github.com/normanking/docgraph/pkg/types"
)

// schemaTemplates maps an order-agnostic entity-type pair to the
// relationship an extraction schema asserts between co-extracted entities
// of those types. Unlike the type-pair matrix, this fires only when both
// entities were pulled from the very same structured extraction pass.
var schemaTemplates = map[typePair]matrixEntry{
	newTypePair(types.EntityPerson, types.EntityOrganization): {types.RelPartyTo, 0.9},
}

// extractionSchemaRule is cascade stage 1: if both endpoint entities carry
// the same extraction_id in their metadata and their type pair matches a
// known schema template, it wins outright over every later stage.
func extractionSchemaRule(entitiesA, entitiesB []*types.Entity, typeA, typeB types.EntityType) (types.RelationshipType, float64, bool) {
	template, ok := schemaTemplates[newTypePair(typeA, typeB)]
	if !ok {
		return "", 0, false
	}
	for _, a := range entitiesA {
		idA, ok := extractionID(a)
		if !ok {
			continue
		}
		for _, b := range entitiesB {
			if idB, ok := extractionID(b); ok && idA == idB {
				return template.relType, template.confidence, true
			}
		}
	}
	return "", 0, false
}

func extractionID(e *types.Entity) (string, bool) {
	v, ok := e.Metadata["extraction_id"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// clusterHintConfidence is the confidence every cluster-hint match carries:
// the spec's own worked example (employment cluster upgrading a
// person↔organization edge) asserts 0.9, so the rule applies that uniformly
// rather than inventing per-keyword values the spec never states.
const clusterHintConfidence = 0.9

// medicalCorePairs are type pairs the type-pair matrix already resolves
// precisely; the cluster-hint rule defers to that stage for them instead
// of asserting a less specific medical/health/clinical label first.
var medicalCorePairs = map[typePair]bool{
	newTypePair(types.EntityDiagnosis, types.EntityMedication):     true,
	newTypePair(types.EntityDiagnosis, types.EntityMedicalDevice):  true,
	newTypePair(types.EntityMedication, types.EntityMedicalDevice): true,
	newTypePair(types.EntityMedication, types.EntityMedication):    true,
}

// clusterHintRule is cascade stage 2: a shared document cluster tag
// carrying a recognized domain keyword assigns a relationship type based
// on the endpoint type pair.
func clusterHintRule(tags []string, typeA, typeB types.EntityType) (types.RelationshipType, float64, bool) {
	for _, tag := range tags {
		lower := strings.ToLower(tag)
		switch {
		case containsAny(lower, "employment", "hr"):
			if newTypePair(typeA, typeB) == newTypePair(types.EntityPerson, types.EntityOrganization) {
				return types.RelWorksAt, clusterHintConfidence, true
			}
		case containsAny(lower, "litigation", "legal", "court"):
			return types.RelPartyTo, clusterHintConfidence, true
		case containsAny(lower, "medical", "health", "clinical"):
			pair := newTypePair(typeA, typeB)
			if medicalCorePairs[pair] {
				continue // defer to the type-pair matrix's more specific entry
			}
			if pair == newTypePair(types.EntityPerson, types.EntityOrganization) ||
				pair == newTypePair(types.EntityPerson, types.EntityLocation) {
				return types.RelReferences, clusterHintConfidence, true
			}
			return types.RelRelatedTo, clusterHintConfidence, true
		}
	}
	return "", 0, false
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
