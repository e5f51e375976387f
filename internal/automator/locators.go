package automator

// DOM anchors for the chat UI, kept in one place. These are JavaScript
// expressions evaluated in the page, so selector churn upstream only ever
// touches this file.
const (
	// Composer.
	promptTextareaID = "prompt-textarea"
	submitButtonID   = "composer-submit-button"

	// Streaming controls.
	stopButtonSelector = "button[data-testid='stop-button']"
	sendButtonSelector = "button[data-testid='send-button']"

	// Error bubbles: either the coloured error div, or any container with
	// the retry button, or the canned too-long paragraph.
	errorBlockJS = `(() => {
		const classic = document.querySelector("div.text-token-text-error.border-token-surface-error");
		if (classic) return classic.innerText;
		const retry = document.querySelector("button[data-testid='regenerate-thread-error-button']");
		if (retry) {
			const block = retry.closest("div");
			if (block) return block.innerText;
		}
		for (const p of document.querySelectorAll("p")) {
			if (p.innerText.trim() === "The message you submitted was too long, please reload the conversation and submit something shorter.") {
				return p.innerText;
			}
		}
		return "";
	})()`
)
