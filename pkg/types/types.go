// Package types defines the shared domain types used across docgraph's
// internal packages: the provenance ledger, the relational entities it
// anchors, the knowledge graph built on top of them, and the envelope every
// exposed operation returns through.
package types

import "time"

// ═══════════════════════════════════════════════════════════════════════════
// PROVENANCE
// ═══════════════════════════════════════════════════════════════════════════

// ProvenanceKind enumerates the artifact kinds the ledger tracks. The depth
// lattice (LatticeDepth) is keyed by this type and never varies per kind.
type ProvenanceKind string

const (
	KindDocument          ProvenanceKind = "DOCUMENT"
	KindOcrResult         ProvenanceKind = "OCR_RESULT"
	KindChunk             ProvenanceKind = "CHUNK"
	KindImage             ProvenanceKind = "IMAGE"
	KindVLMDescription    ProvenanceKind = "VLM_DESCRIPTION"
	KindEmbedding         ProvenanceKind = "EMBEDDING"
	KindExtraction        ProvenanceKind = "EXTRACTION"
	KindFormFill          ProvenanceKind = "FORM_FILL"
	KindEntityExtraction  ProvenanceKind = "ENTITY_EXTRACTION"
	KindComparison        ProvenanceKind = "COMPARISON"
	KindClustering        ProvenanceKind = "CLUSTERING"
	KindKnowledgeGraph    ProvenanceKind = "KNOWLEDGE_GRAPH"
)

// LatticeDepth is the fixed depth lattice every provenance write must
// respect. It is a compile-time constant per the design notes; violating it
// for a given kind is a programming error, not a recoverable condition.
var LatticeDepth = map[ProvenanceKind]int{
	KindDocument:         0,
	KindFormFill:         0,
	KindOcrResult:        1,
	KindChunk:            2,
	KindEmbedding:        3,
	KindEntityExtraction: 2,
	KindKnowledgeGraph:   2,
	KindComparison:       2,
	KindClustering:       2,
	KindImage:            1,
	KindVLMDescription:   2,
	KindExtraction:       1,
}

// ProvenanceRecord is the immutable fingerprint every derived artifact owns.
type ProvenanceRecord struct {
	ID                   string
	Kind                 ProvenanceKind
	SourceID             string // optional
	RootDocumentID       string
	ParentIDs            []string
	ChainDepth           int
	ChainPath            []ProvenanceKind // optional
	ContentHash          string           // required, "sha256:<hex>"
	InputHash            string           // optional
	FileHash             string           // optional
	Processor            string
	ProcessorVersion     string
	ProcessingParams     map[string]any
	CreatedAt            time.Time
	ProcessedAt          time.Time
	SourceFileCreatedAt  *time.Time
	SourceFileModifiedAt *time.Time
	Location             map[string]any // optional, e.g. char span / page number
}

// ═══════════════════════════════════════════════════════════════════════════
// DOCUMENT DERIVATION CHAIN
// ═══════════════════════════════════════════════════════════════════════════

type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "pending"
	DocumentProcessing DocumentStatus = "processing"
	DocumentComplete   DocumentStatus = "complete"
	DocumentFailed     DocumentStatus = "failed"
)

type Document struct {
	ID           string
	FilePath     string
	FileName     string
	FileHash     string
	FileSize     int64
	FileType     string
	Status       DocumentStatus
	PageCount    *int
	ProvenanceID string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type OcrResult struct {
	ID             string
	DocumentID     string
	ExtractedText  string
	TextLength     int
	PageCount      int
	QualityScore   *float64
	Mode           string
	Cost           *float64
	ContentHash    string
	ProvenanceID   string
	CreatedAt      time.Time
}

type EmbeddingStatus string

const (
	EmbeddingPending  EmbeddingStatus = "pending"
	EmbeddingComplete EmbeddingStatus = "complete"
	EmbeddingFailed   EmbeddingStatus = "failed"
)

type Chunk struct {
	ID              string
	DocumentID      string
	OcrResultID     string
	Text            string
	TextHash        string
	ChunkIndex      int
	CharacterStart  int
	CharacterEnd    int
	PageNumber      *int
	PageRange       string
	OverlapPrev     int
	OverlapNext     int
	EmbeddingStatus EmbeddingStatus
	ProvenanceID    string
	CreatedAt       time.Time
}

type Image struct {
	ID              string
	DocumentID      string
	PageNumber      *int
	ImagePath       string
	VLMDescription  string
	ProvenanceID    string
	CreatedAt       time.Time
}

type Extraction struct {
	ID           string
	DocumentID   string
	ExtractionID string // stable external identifier referenced by entity metadata
	SchemaName   string
	Payload      map[string]any
	ProvenanceID string
	CreatedAt    time.Time
}

type FormFill struct {
	ID             string
	SourceFileHash string
	TemplateName   string
	Payload        map[string]any
	ProvenanceID   string
	CreatedAt      time.Time
}

// Embedding references exactly one of ChunkID, ImageID, ExtractionID.
type Embedding struct {
	ID                  string
	ChunkID             string
	ImageID             string
	ExtractionID        string
	DocumentID          string
	OriginalText        string
	OriginalTextLength  int
	ModelName           string
	ModelVersion        string
	ContentHash         string
	ProvenanceID        string
	CreatedAt           time.Time
}

type Vector struct {
	EmbeddingID string
	Dims        int
	Values      []float32
}

type Comparison struct {
	ID           string
	DocumentIDA  string
	DocumentIDB  string
	Result       map[string]any
	ProvenanceID string
	CreatedAt    time.Time
}

type DocumentCluster struct {
	ID                 string
	DocumentID         string
	ClassificationTag  string
	Confidence         *float64
	ProvenanceID       string
	CreatedAt          time.Time
}

// ═══════════════════════════════════════════════════════════════════════════
// ENTITIES
// ═══════════════════════════════════════════════════════════════════════════

type EntityType string

const (
	EntityPerson        EntityType = "person"
	EntityOrganization  EntityType = "organization"
	EntityDate          EntityType = "date"
	EntityAmount        EntityType = "amount"
	EntityCaseNumber    EntityType = "case_number"
	EntityLocation      EntityType = "location"
	EntityStatute       EntityType = "statute"
	EntityExhibit       EntityType = "exhibit"
	EntityMedication    EntityType = "medication"
	EntityDiagnosis     EntityType = "diagnosis"
	EntityMedicalDevice EntityType = "medical_device"
	EntityOther         EntityType = "other"
)

type Entity struct {
	ID             string
	DocumentID     string
	EntityType     EntityType
	RawText        string
	NormalizedText string
	Confidence     float64
	Metadata       map[string]any
	ProvenanceID   string
	CreatedAt      time.Time
}

type EntityMention struct {
	ID          string
	EntityID    string
	DocumentID  string
	ChunkID     string
	PageNumber  *int
	CharStart   *int
	CharEnd     *int
	ContextText string
	CreatedAt   time.Time
}

// ═══════════════════════════════════════════════════════════════════════════
// KNOWLEDGE GRAPH
// ═══════════════════════════════════════════════════════════════════════════

type ResolutionMethod string

const (
	ResolutionExact ResolutionMethod = "exact"
	ResolutionFuzzy ResolutionMethod = "fuzzy"
	ResolutionAI    ResolutionMethod = "ai"
)

type KnowledgeNode struct {
	ID             string
	EntityType     EntityType
	CanonicalName  string
	NormalizedName string
	Aliases        []string
	DocumentCount  int
	MentionCount   int
	EdgeCount      int
	AvgConfidence  float64
	Metadata       map[string]any
	ProvenanceID   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type NodeEntityLink struct {
	ID                string
	NodeID            string
	EntityID          string
	DocumentID        string
	SimilarityScore   float64
	ResolutionMethod  ResolutionMethod
	CreatedAt         time.Time
}

type RelationshipType string

const (
	RelCoMentioned     RelationshipType = "co_mentioned"
	RelCoLocated       RelationshipType = "co_located"
	RelWorksAt         RelationshipType = "works_at"
	RelRepresents      RelationshipType = "represents"
	RelLocatedIn       RelationshipType = "located_in"
	RelFiledIn         RelationshipType = "filed_in"
	RelCites           RelationshipType = "cites"
	RelReferences      RelationshipType = "references"
	RelPartyTo         RelationshipType = "party_to"
	RelRelatedTo       RelationshipType = "related_to"
	RelPrecedes        RelationshipType = "precedes"
	RelOccurredAt      RelationshipType = "occurred_at"
	RelTreatedWith     RelationshipType = "treated_with"
	RelAdministeredVia RelationshipType = "administered_via"
	RelManagedBy       RelationshipType = "managed_by"
	RelInteractsWith   RelationshipType = "interacts_with"
)

// ClassifiedBy records which cascade stage produced a classification.
type ClassifiedBy string

const (
	ClassifiedByExtractionSchema ClassifiedBy = "rule:extraction_schema"
	ClassifiedByClusterHint      ClassifiedBy = "rule:cluster_hint"
	ClassifiedByTypeMatrix       ClassifiedBy = "rule:type_matrix"
	ClassifiedByAI               ClassifiedBy = "ai"
)

// ClassificationHistoryEntry is appended to an edge's metadata on every
// successful classification; it is never rewritten or removed.
type ClassificationHistoryEntry struct {
	OriginalType   RelationshipType `json:"original_type"`
	ClassifiedType RelationshipType `json:"classified_type"`
	ClassifiedBy   ClassifiedBy     `json:"classified_by"`
	Confidence     float64          `json:"confidence,omitempty"`
	ClassifiedAt   time.Time        `json:"classified_at"`
}

// ClassificationFailure is appended to an edge's metadata when a batch's
// generative call fails; it never removes or masks the prior relationship
// type.
type ClassificationFailure struct {
	Error       string    `json:"error"`
	AttemptedAt time.Time `json:"attempted_at"`
}

type KnowledgeEdge struct {
	ID               string
	SourceNodeID     string
	TargetNodeID     string
	RelationshipType RelationshipType
	Weight           float64
	EvidenceCount    int
	DocumentIDs      []string
	Metadata         map[string]any
	ProvenanceID     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ═══════════════════════════════════════════════════════════════════════════
// RESULT ENVELOPE
// ═══════════════════════════════════════════════════════════════════════════

// Envelope is the transport-neutral result shape every exposed operation
// returns: {success, data?, error?}.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *AppError  `json:"error,omitempty"`
}

// Ok wraps a successful result.
func Ok(data any) Envelope {
	return Envelope{Success: true, Data: data}
}

// Fail wraps a failed result.
func Fail(err *AppError) Envelope {
	return Envelope{Success: false, Error: err}
}
