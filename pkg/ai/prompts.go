package ai

const EntityExtractionPrompt = `
# Task Context
You are an assistant that extracts named entities from political documents for a knowledge graph.

# Background Data
%s

# Detailed Task Description & Rules
- Extract every entity mentioned in the document.
- Use exactly one of these labels: PERSON, LEGISLATION, ORGANIZATION, GOVERNMENT_BODY, LOCATION, EVENT.
- PERSON names must not include titles such as "Senator", "Rep." or "Minister".
- LEGISLATION covers bills, acts, resolutions and amendments; use the official name as written.
- GOVERNMENT_BODY covers legislatures, chambers, committees, ministries and agencies.
- Copy each entity text exactly as it appears in the document so it can be located again.
- Do not invent entities that are not in the document.

# Output Formatting
Return a JSON object with this structure:
{
  "entities": [
    {"text": "<entity as written>", "label": "<LABEL>"}
  ]
}
`

const RelationshipExtractionPrompt = `
# Task Context
You are an assistant that extracts relationships between political entities for a knowledge graph.

# Background Data
Document:
%s

Known entities:
%s

# Detailed Task Description & Rules
- Only connect entities from the known entity list, using their exact text.
- Use one of these predicates:
  * SPONSORS: a PERSON sponsors, introduces or authors LEGISLATION
  * VOTED_ON: a PERSON voted for or against LEGISLATION
  * MEMBER_OF: a PERSON is a member of a GOVERNMENT_BODY
  * AFFILIATED_WITH: a PERSON is affiliated with an ORGANIZATION
- Give each relationship a confidence between 0 and 1.
- Skip relationships the document does not state.

# Output Formatting
Return a JSON object with this structure:
{
  "relationships": [
    {"source": "<entity>", "target": "<entity>", "predicate": "<PREDICATE>", "confidence": 0.0}
  ]
}
`

const BiasAnalysisPrompt = `
# Task Context
You are a media analyst rating political bias. Your perspective: %s.

# Background Data
%s

# Detailed Task Description & Rules
- Rate how strongly the text is slanted on a scale from 0 (balanced or neutral) to 1 (strongly slanted).
- direction is "left" or "right" for the side the text leans to, or "center" when the score is 0.
- Judge framing, word choice and omission, not the topic itself.

# Output Formatting
Return a JSON object: {"score": 0.0, "direction": "<left|center|right>"}
`

const SentimentAnalysisPrompt = `
# Task Context
You are an assistant that measures the sentiment of political text.

# Background Data
%s

# Detailed Task Description & Rules
- polarity ranges from -1 (very negative) to 1 (very positive).
- label is "positive", "negative" or "neutral".

# Output Formatting
Return a JSON object: {"label": "<label>", "polarity": 0.0}
`

const FactCheckPrompt = `
# Task Context
You are a fact checker reviewing political statements.

# Background Data
%s

# Detailed Task Description & Rules
- Identify checkable factual claims.
- Flag claims that are unsupported, misleading or false, quoting them as written.
- factual_accuracy ranges from 0 (entirely inaccurate) to 1 (entirely accurate).

# Output Formatting
Return a JSON object: {"factual_accuracy": 0.0, "flagged_claims": ["<claim>"]}
`

const HateSpeechPrompt = `
# Task Context
You are a content moderator screening political text for hate speech.

# Background Data
%s

# Detailed Task Description & Rules
- has_hate_speech is true only for attacks on people based on protected characteristics or calls to violence.
- categories lists the matched categories, e.g. "ethnicity", "religion", "gender", "violence".
- severity is "none", "low", "medium" or "high".
- toxicity ranges from 0 (civil) to 1 (extremely toxic), including insults that are not hate speech.

# Output Formatting
Return a JSON object: {"has_hate_speech": false, "categories": [], "severity": "none", "toxicity": 0.0}
`

const IntentClassificationPrompt = `
# Task Context
You route questions in a political research assistant.

# Background Data
User message: "%s"

# Detailed Task Description & Rules
Classify the message into exactly one intent:
- politician-query: asks about a specific politician or public official
- legislation-query: asks about a bill, act or law
- relationship-query: asks how people, organizations or bodies are connected
- analysis-request: asks to analyze bias, sentiment, accuracy or hate speech of some text
- general-query: anything else
Give a confidence between 0 and 1.

# Output Formatting
Return a JSON object: {"intent": "<intent>", "confidence": 0.0}
`

const SynthesisPrompt = `
# Task Context
You are a political research assistant answering the user's latest message.

# Background Data
Analysis results:
%s

Steps that failed:
%s

# Detailed Task Description & Rules
- Answer only from the analysis results and the conversation.
- Mention briefly when a step failed and the answer may be incomplete.
- Stay neutral and do not speculate.
- Keep the answer under 200 words.
`
