package gemini

// AnalysisPrompt captures the instructions sent with every transcript. Keep
// updates centralized here so it is easy to tweak without hunting through
// call sites.
const AnalysisPrompt = `You are an assistant that analyzes video transcripts.

Given the transcript below, produce a structured analysis.

Rules:

- "summary": two to four sentences capturing what the video is about.

- "keyPoints": three to seven short bullet strings with the main takeaways.

- "sentiment": exactly one of "positive", "negative", or "neutral", judged from the speaker's overall tone.

- "topics": short topic labels covered by the video.

- "suggestedTags": lowercase tags suitable for categorizing the video.

You must respond ONLY with a JSON object like: {"summary": "...", "keyPoints": ["..."], "sentiment": "neutral", "topics": ["..."], "suggestedTags": ["..."]}

Now analyze this transcript:`
