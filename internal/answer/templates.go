package answer

import (
	"regexp"
	"strings"

	"docqa/internal/textutil"
)

// Intent names a canned response.
type Intent string

const (
	IntentGreeting       Intent = "greeting"
	IntentThanks         Intent = "thanks"
	IntentFarewell       Intent = "farewell"
	IntentCapabilities   Intent = "capabilities"
	IntentGeneral        Intent = "general"
	IntentUploadPrompt   Intent = "upload_prompt"
	IntentNotFound       Intent = "not_found"
	IntentCouldNotAnswer Intent = "could_not_extract"
	IntentDegraded       Intent = "degraded"
)

const DefaultLocale = "en"

// Templates maps locale to intent to response text.
type Templates map[string]map[Intent]string

func DefaultTemplates() Templates {
	return Templates{
		"en": {
			IntentGreeting:       "Hello! Upload a document and ask me anything about it, or start a quiz to test yourself.",
			IntentThanks:         "You're welcome! Ask another question whenever you like.",
			IntentFarewell:       "Goodbye! Your documents stay available for next time.",
			IntentCapabilities:   "I answer questions about your uploaded documents with supporting passages, search them, summarize them, and generate multiple-choice quizzes.",
			IntentGeneral:        "I can chat briefly, but I give my best answers about documents. Upload one for a detailed analysis.",
			IntentUploadPrompt:   "That question seems to be about a document, but none is loaded. Please upload a document first.",
			IntentNotFound:       "I could not find information about that in the document.",
			IntentCouldNotAnswer: "I couldn't extract a specific answer to your question from the document.",
			IntentDegraded:       "The answering service is temporarily unavailable. Please try again in a moment.",
		},
		"hi": {
			IntentGreeting:       "Namaste! Document upload karo aur uske baare mein kuch bhi puchho, ya quiz shuru karo.",
			IntentThanks:         "Koi baat nahi! Aur sawaal ho toh puchho.",
			IntentFarewell:       "Alvida! Aapke documents agli baar ke liye saved hain.",
			IntentCapabilities:   "Main aapke uploaded documents ke sawaalon ka jawab deta hoon, search aur summary karta hoon, aur quiz banata hoon.",
			IntentGeneral:        "Main thodi baat-cheet kar sakta hoon, par detail analysis ke liye document upload karo.",
			IntentUploadPrompt:   "Yeh sawaal document ke baare mein lagta hai. Pehle document upload karo.",
			IntentNotFound:       "Document mein is baare mein jaankari nahi mili.",
			IntentCouldNotAnswer: "Document se is sawaal ka specific jawab nahi nikal paya.",
			IntentDegraded:       "Service abhi available nahi hai. Thodi der baad dubara try karo.",
		},
	}
}

// Text returns the response for intent in locale, falling back to English.
func (t Templates) Text(locale string, intent Intent) string {
	if m, ok := t[locale]; ok {
		if s, ok := m[intent]; ok {
			return s
		}
	}
	return t[DefaultLocale][intent]
}

var chitChatPatterns = []struct {
	intent Intent
	re     *regexp.Regexp
}{
	{IntentGreeting, regexp.MustCompile(`^(hi|hello|hey|hiya|namaste|namaskar|good (morning|afternoon|evening))( there| bot)?$`)},
	{IntentThanks, regexp.MustCompile(`^(thanks|thank you|thx|ty|shukriya|dhanyavaad|dhanyavad)( so much| a lot| very much)?$`)},
	{IntentFarewell, regexp.MustCompile(`^(bye|goodbye|good bye|see you|see ya|alvida|tata)( later| soon)?$`)},
	{IntentCapabilities, regexp.MustCompile(`^(what can you do|who are you|what are you|how can you help( me)?|help|tum kya kar sakte ho|aap kya kar sakte ho)$`)},
}

const trimChars = " \t\r\n!?.,;:"

// ChitChatIntent reports the conversational intent of question, if any.
func ChitChatIntent(question string) (Intent, bool) {
	q := strings.Join(strings.Fields(strings.ToLower(strings.Trim(question, trimChars))), " ")
	q = strings.Trim(q, trimChars)
	for _, p := range chitChatPatterns {
		if p.re.MatchString(q) {
			return p.intent, true
		}
	}
	return "", false
}

var documentVocabulary = map[string]struct{}{
	"document": {}, "documents": {}, "doc": {}, "docs": {}, "file": {}, "files": {},
	"pdf": {}, "upload": {}, "uploaded": {}, "paper": {}, "report": {}, "article": {},
	"section": {}, "chapter": {}, "page": {}, "summary": {}, "summarize": {},
	"summarise": {}, "author": {}, "text": {}, "passage": {},
}

// mentionsDocument reports whether question refers to document content.
func mentionsDocument(question string) bool {
	for _, w := range textutil.Words(question) {
		if _, ok := documentVocabulary[w]; ok {
			return true
		}
	}
	return false
}

var hinglishMarkers = map[string]struct{}{
	"namaste": {}, "namaskar": {}, "shukriya": {}, "dhanyavaad": {}, "dhanyavad": {},
	"kya": {}, "hai": {}, "kaise": {}, "batao": {}, "samjhao": {}, "kaun": {}, "mein": {}, "alvida": {},
}

// DetectLocale returns "hi" for Hinglish questions and fallback otherwise.
func DetectLocale(question, fallback string) string {
	for _, w := range textutil.Words(question) {
		if _, ok := hinglishMarkers[w]; ok {
			return "hi"
		}
	}
	if fallback == "" {
		return DefaultLocale
	}
	return fallback
}
