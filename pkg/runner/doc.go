/*
Package runner implements the interactive question loop for the ragloop engine.

It acts as the bridge between the engine and the outside world. The runner reads
questions through a pluggable IOHandler, streams every trace event back to it while a
run progresses, and presents the final answer. Ctrl+C cancels the run in flight and
returns to the prompt; at the prompt it ends the session.

# Key Components

  - Runner: The loop driving one run per question.
  - IOHandler: Decouples how questions are read and results shown (CLI, JSON, etc.).
  - TextHandler: A standard implementation for interactive CLI usage.
  - JSONHandler: JSON Lines for scripting and process integration.

# Usage

	r := runner.NewRunner(
		runner.WithInputHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
	)

	if err := r.Run(ctx, engine); err != nil {
		log.Fatal(err)
	}
*/
package runner
