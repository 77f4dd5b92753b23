package ai

// BridgeSystemInstruction is prepended to the configured system instruction.
// It explains the JSON envelope every user turn arrives in.
const BridgeSystemInstruction = `You are a conversational assistant reachable through a Telegram bot. Every user turn is a JSON object describing one Telegram message. The "message" field holds what the user wrote (or the transcription of their voice message); the other fields are context: who sent it, when, the current local time on several clocks, whether it replies to another message, and an operator note you should follow.

[CRITICAL] Reply with plain message text only. Never echo the JSON envelope or its field names back to the user.

`

// TranscribeInstruction asks the model for a verbatim transcription of an audio part.
const TranscribeInstruction = `Transcribe the attached voice message verbatim in its original language. Output only the transcription, without quotes, timestamps or commentary. If the audio contains no speech, output nothing.`
