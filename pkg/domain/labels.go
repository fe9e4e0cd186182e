package domain

// Route labels returned by RouteQuestion.
const (
	LabelNormalLLM   = "normal_llm"
	LabelVectorstore = "vectorstore"
)

// Labels returned by DecideToGenerate.
const (
	LabelTransformQuery = "transform_query"
	LabelGenerate       = "generate"
)

// Labels returned by GradeGeneration.
const (
	LabelNotSupported = "not_supported"
	LabelUseful       = "useful"
)

// Binary scores emitted by the grading classifiers.
const (
	ScoreYes = "yes"
	ScoreNo  = "no"
)

// LabelSet is the closed enumeration of labels a decision point may return.
type LabelSet []string

// Contains reports whether label belongs to the set.
func (s LabelSet) Contains(label string) bool {
	for _, l := range s {
		if l == label {
			return true
		}
	}
	return false
}

var (
	RouteQuestionLabels    = LabelSet{LabelNormalLLM, LabelVectorstore}
	DecideToGenerateLabels = LabelSet{LabelTransformQuery, LabelGenerate}
	GradeGenerationLabels  = LabelSet{LabelNotSupported, LabelUseful}
	BinaryScores           = LabelSet{ScoreYes, ScoreNo}
)
