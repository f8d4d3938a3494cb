package settings

import (
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// DynamicBool holds fields that accept either a boolean or a string literal,
// e.g. collapsible_file_list = "adaptive".
type DynamicBool struct {
	Bool  bool
	Str   string
	IsStr bool
}

// True reports the boolean reading of the value. String literals read false.
func (d DynamicBool) True() bool { return !d.IsStr && d.Bool }

// Is reports whether the value is the given string literal.
func (d DynamicBool) Is(s string) bool { return d.IsStr && d.Str == s }

// ConfigSection holds the global [config] section.
type ConfigSection struct {
	Model                  string   `mapstructure:"model"`
	FallbackModels         []string `mapstructure:"fallback_models"`
	GitProvider            string   `mapstructure:"git_provider"`
	PublishOutput          bool     `mapstructure:"publish_output"`
	VerbosityLevel         int      `mapstructure:"verbosity_level"`
	AITimeout              int      `mapstructure:"ai_timeout"`
	Temperature            float64  `mapstructure:"temperature"`
	Seed                   int      `mapstructure:"seed"`
	MaxModelTokens         int      `mapstructure:"max_model_tokens"`
	CustomModelMaxTokens   int      `mapstructure:"custom_model_max_tokens"`
	PatchExtraLinesBefore  int      `mapstructure:"patch_extra_lines_before"`
	PatchExtraLinesAfter   int      `mapstructure:"patch_extra_lines_after"`
	IgnorePRTitle          []string `mapstructure:"ignore_pr_title"`
	IgnorePRAuthors        []string `mapstructure:"ignore_pr_authors"`
	IgnoreGlob             []string `mapstructure:"ignore_glob"`
	IgnoreRegex            []string `mapstructure:"ignore_regex"`
}

// ReviewerSection holds the [pr_reviewer] section.
type ReviewerSection struct {
	RequireScoreReview          bool   `mapstructure:"require_score_review"`
	RequireTestsReview          bool   `mapstructure:"require_tests_review"`
	RequireEstimateEffort       bool   `mapstructure:"require_estimate_effort_to_review"`
	RequireSecurityReview       bool   `mapstructure:"require_security_review"`
	NumMaxFindings              int    `mapstructure:"num_max_findings"`
	ExtraInstructions           string `mapstructure:"extra_instructions"`
	PersistentComment           bool   `mapstructure:"persistent_comment"`
	FinalUpdateMessage          bool   `mapstructure:"final_update_message"`
	EnableReviewLabelsSecurity  bool   `mapstructure:"enable_review_labels_security"`
	EnableReviewLabelsEffort    bool   `mapstructure:"enable_review_labels_effort"`
}

// DescriberSection holds the [pr_description] section.
type DescriberSection struct {
	PublishLabels                 bool        `mapstructure:"publish_labels"`
	AddOriginalUserDescription    bool        `mapstructure:"add_original_user_description"`
	GenerateAITitle               bool        `mapstructure:"generate_ai_title"`
	UseBulletPoints               bool        `mapstructure:"use_bullet_points"`
	ExtraInstructions             string      `mapstructure:"extra_instructions"`
	EnablePRType                  bool        `mapstructure:"enable_pr_type"`
	EnablePRDiagram               bool        `mapstructure:"enable_pr_diagram"`
	EnableSemanticFilesTypes      bool        `mapstructure:"enable_semantic_files_types"`
	CollapsibleFileList           DynamicBool `mapstructure:"collapsible_file_list"`
	CollapsibleFileListThreshold  int         `mapstructure:"collapsible_file_list_threshold"`
	FinalUpdateMessage            bool        `mapstructure:"final_update_message"`
}

// ImproveSection holds the [pr_code_suggestions] section.
type ImproveSection struct {
	MaxContextTokens                int    `mapstructure:"max_context_tokens"`
	CommitableCodeSuggestions       bool   `mapstructure:"commitable_code_suggestions"`
	DualPublishingScoreThreshold    int    `mapstructure:"dual_publishing_score_threshold"`
	SuggestionsScoreThreshold       int    `mapstructure:"suggestions_score_threshold"`
	NumCodeSuggestionsPerChunk      int    `mapstructure:"num_code_suggestions_per_chunk"`
	MaxNumberOfCalls                int    `mapstructure:"max_number_of_calls"`
	ParallelCalls                   bool   `mapstructure:"parallel_calls"`
	PersistentComment               bool   `mapstructure:"persistent_comment"`
	ExtraInstructions               string `mapstructure:"extra_instructions"`
	DemandCodeSuggestionsSelfReview bool   `mapstructure:"demand_code_suggestions_self_review"`
	CodeSuggestionsSelfReviewText   string `mapstructure:"code_suggestions_self_review_text"`
	ApprovePROnSelfReview           bool   `mapstructure:"approve_pr_on_self_review"`
	FoldSuggestionsOnSelfReview     bool   `mapstructure:"fold_suggestions_on_self_review"`
}

// QuestionsSection holds the [pr_questions] section.
type QuestionsSection struct {
	ExtraInstructions string `mapstructure:"extra_instructions"`
}

// GitHubSection holds the [github] section.
type GitHubSection struct {
	DeploymentType     string `mapstructure:"deployment_type"`
	UserToken          string `mapstructure:"user_token"`
	BaseURL            string `mapstructure:"base_url"`
	AppID              int64  `mapstructure:"app_id"`
	PrivateKey         string `mapstructure:"private_key"`
	WebhookSecret      string `mapstructure:"webhook_secret"`
	RatelimitRetries   int    `mapstructure:"ratelimit_retries"`
	MaxCommentChars    int    `mapstructure:"max_comment_chars"`
}

// GitHubAppSection holds the [github_app] section.
type GitHubAppSection struct {
	HandlePushTrigger                bool     `mapstructure:"handle_push_trigger"`
	PushTriggerWaitForInitialReview  bool     `mapstructure:"push_trigger_wait_for_initial_review"`
	PushTriggerPendingTTL            int      `mapstructure:"push_trigger_pending_ttl"`
	PRCommands                       []string `mapstructure:"pr_commands"`
	PushCommands                     []string `mapstructure:"push_commands"`
}

// OpenAISection holds the [openai] section.
type OpenAISection struct {
	Key     string `mapstructure:"key"`
	APIBase string `mapstructure:"api_base"`
}

// Sections is the typed view over the resolved settings tree.
type Sections struct {
	Config      ConfigSection    `mapstructure:"config"`
	Reviewer    ReviewerSection  `mapstructure:"pr_reviewer"`
	Describer   DescriberSection `mapstructure:"pr_description"`
	Improve     ImproveSection   `mapstructure:"pr_code_suggestions"`
	Questions   QuestionsSection `mapstructure:"pr_questions"`
	GitHub      GitHubSection    `mapstructure:"github"`
	GitHubApp   GitHubAppSection `mapstructure:"github_app"`
	OpenAI      OpenAISection    `mapstructure:"openai"`
}

// dynamicBoolHook decodes bool-or-string values into DynamicBool.
func dynamicBoolHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(DynamicBool{}) {
			return data, nil
		}
		switch v := data.(type) {
		case bool:
			return DynamicBool{Bool: v}, nil
		case string:
			return DynamicBool{Str: v, IsStr: true}, nil
		default:
			return data, nil
		}
	}
}

func decodeSections(tree map[string]any) (*Sections, error) {
	var out Sections
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
		DecodeHook:       dynamicBoolHook(),
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(tree); err != nil {
		return nil, err
	}
	return &out, nil
}
