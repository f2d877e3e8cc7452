package validator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Project files materialized for the type-check stage. The declaration stub
// encodes the runtime API surface so tsc can check generated source without
// installing the real SDK.
const (
	typeCheckPackageJSON = `{
  "name": "forge-typecheck",
  "version": "0.0.0",
  "private": true,
  "type": "module"
}
`

	typeCheckTSConfig = `{
  "compilerOptions": {
    "target": "ES2022",
    "module": "ES2022",
    "moduleResolution": "bundler",
    "strict": true,
    "noEmit": true,
    "skipLibCheck": true,
    "types": []
  },
  "files": ["workflow.ts", "runtime.d.ts"]
}
`

	runtimeStub = `declare module "@chainlink/cre-sdk" {
  namespace cre {
    interface Runtime<C> {
      config: C;
      log(message: string): void;
    }
    interface HTTPPayload {
      input: string;
    }
    interface EVMLog {
      blockNumber: number;
      transactionHash: string;
    }
    function handler(
      trigger: unknown,
      callback: (runtime: Runtime<any>, payload?: any) => unknown
    ): unknown;
    namespace capabilities {
      class HTTPClient {
        sendRequest(
          runtime: Runtime<any>,
          request: { url: string; method: string; body?: string }
        ): { result(): { statusCode: number; body: string } };
      }
      class CronCapability {
        trigger(config: { schedule: string }): unknown;
      }
      class HTTPCapability {
        trigger(config: Record<string, unknown>): unknown;
      }
      class EVMClient {
        constructor(config: { chainSelector: string });
        balanceAt(
          runtime: Runtime<any>,
          query: { address: string }
        ): { result(): { value: bigint } };
        writeReport(
          runtime: Runtime<any>,
          report: { receiver: string; report: string }
        ): { result(): unknown };
        logTrigger(config: { address: string; event: string }): unknown;
      }
    }
  }
  class Runner {
    static newRunner<C>(options: { configSchema: unknown }): Promise<Runner>;
    run(init: (config: any) => unknown[]): Promise<void>;
  }
  export { cre, Runner };
}

declare module "zod" {
  namespace z {
    function object(shape: Record<string, unknown>): any;
    function string(): any;
    function number(): any;
    function boolean(): any;
    function array(item: unknown): any;
    type infer<T> = any;
  }
  export { z };
}

declare module "viem" {
  export function formatUnits(value: bigint, decimals: number): string;
  export function parseUnits(value: string, decimals: number): bigint;
}
`
)

// runTypeCheck materializes a throwaway project and runs tsc --noEmit over
// it. A missing tsc binary degrades to a warning so validation stays usable
// on machines without a node toolchain.
func (v *Validator) runTypeCheck(ctx context.Context, source string) (errs, warnings []string) {
	tsc := v.tscPath
	if tsc == "" {
		path, err := exec.LookPath("tsc")
		if err != nil {
			return nil, []string{"[TSC] type-check skipped: tsc not found in PATH"}
		}
		tsc = path
	}

	dir, err := os.MkdirTemp("", "forge-tsc-*")
	if err != nil {
		return nil, []string{fmt.Sprintf("[TSC] type-check skipped: %v", err)}
	}
	defer os.RemoveAll(dir)

	files := map[string]string{
		"workflow.ts":   source,
		"runtime.d.ts":  runtimeStub,
		"tsconfig.json": typeCheckTSConfig,
		"package.json":  typeCheckPackageJSON,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return nil, []string{fmt.Sprintf("[TSC] type-check skipped: %v", err)}
		}
	}

	cmdCtx, cancel := context.WithTimeout(ctx, v.typeCheckTimeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, tsc, "--noEmit", "--pretty", "false", "-p", dir)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr == nil {
		return nil, nil
	}

	if cmdCtx.Err() == context.DeadlineExceeded {
		return []string{fmt.Sprintf("[TSC] type-check timed out after %s", v.typeCheckTimeout)}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		out := strings.TrimSpace(stdout.String() + "\n" + stderr.String())
		if len(out) > maxTypeCheckOutput {
			out = out[:maxTypeCheckOutput] + "... (truncated)"
		}
		return []string{"[TSC] " + out}, nil
	}

	// Spawn failure (bad tsc path, missing node): not the code's fault.
	v.logger.Warn("type-check could not run", "error", runErr)
	return nil, []string{fmt.Sprintf("[TSC] type-check skipped: %v", runErr)}
}
