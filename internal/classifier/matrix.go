package classifier

import "github.com/normanking/docgraph/pkg/types"

// typePair is an order-agnostic key into the matrix: always stored with
// the lexicographically smaller EntityType first so lookups don't care
// which side of an edge a type landed on.
type typePair struct {
	a, b types.EntityType
}

func newTypePair(a, b types.EntityType) typePair {
	if a > b {
		a, b = b, a
	}
	return typePair{a, b}
}

type matrixEntry struct {
	relType    types.RelationshipType
	confidence float64
}

// typePairMatrix is the fixed table mapping an (entity_type, entity_type)
// pair to the relationship type and confidence a co-occurrence edge
// between two such entities should carry once the cascade's rule stages
// have both missed.
var typePairMatrix = map[typePair]matrixEntry{
	newTypePair(types.EntityPerson, types.EntityOrganization):     {types.RelWorksAt, 0.75},
	newTypePair(types.EntityOrganization, types.EntityLocation):   {types.RelLocatedIn, 0.80},
	newTypePair(types.EntityCaseNumber, types.EntityDate):         {types.RelFiledIn, 0.85},
	newTypePair(types.EntityStatute, types.EntityCaseNumber):      {types.RelCites, 0.90},
	newTypePair(types.EntityPerson, types.EntityCaseNumber):       {types.RelPartyTo, 0.75},
	newTypePair(types.EntityOrganization, types.EntityCaseNumber): {types.RelPartyTo, 0.75},
	newTypePair(types.EntityDiagnosis, types.EntityMedication):    {types.RelTreatedWith, 0.85},
	newTypePair(types.EntityMedication, types.EntityMedicalDevice): {types.RelAdministeredVia, 0.80},
	newTypePair(types.EntityDiagnosis, types.EntityMedicalDevice):  {types.RelManagedBy, 0.80},
	newTypePair(types.EntityMedication, types.EntityMedication):    {types.RelInteractsWith, 0.75},
	newTypePair(types.EntityDate, types.EntityPerson):              {types.RelOccurredAt, 0.70},
	newTypePair(types.EntityDate, types.EntityOrganization):        {types.RelOccurredAt, 0.70},
	newTypePair(types.EntityDate, types.EntityLocation):            {types.RelOccurredAt, 0.70},
	newTypePair(types.EntityAmount, types.EntityCaseNumber):        {types.RelPartyTo, 0.70},
	newTypePair(types.EntityAmount, types.EntityPerson):            {types.RelReferences, 0.65},
	newTypePair(types.EntityAmount, types.EntityOrganization):      {types.RelReferences, 0.65},
}

// exhibitConfidence resolves the exhibit↔* entry's published 0.70–0.85
// range: a case_number or statute exhibit reference is the strongest
// evidentiary link the matrix covers (0.85); every other exhibit pairing
// gets the range's floor (0.70).
func exhibitConfidence(other types.EntityType) float64 {
	switch other {
	case types.EntityCaseNumber, types.EntityStatute:
		return 0.85
	default:
		return 0.70
	}
}

// matrixLookup returns the relationship type and confidence the fixed
// type-pair matrix assigns to (a, b), order-agnostic. exhibit is handled
// as a wildcard match against any other type before the fixed table.
func matrixLookup(a, b types.EntityType) (types.RelationshipType, float64, bool) {
	if a == types.EntityExhibit && b == types.EntityExhibit {
		return types.RelReferences, exhibitConfidence(b), true
	}
	if a == types.EntityExhibit {
		return types.RelReferences, exhibitConfidence(b), true
	}
	if b == types.EntityExhibit {
		return types.RelReferences, exhibitConfidence(a), true
	}
	if entry, ok := typePairMatrix[newTypePair(a, b)]; ok {
		return entry.relType, entry.confidence, true
	}
	return "", 0, false
}
