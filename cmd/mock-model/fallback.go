package main

import (
	"encoding/json"
	"fmt"
)

// fallbackSource follows the runner layout the workflow validator enforces:
// whitelisted imports, a top-level zod configSchema, a synchronous handler
// callback and an exported main. A bare mock-model therefore hands forge a
// generation that passes static checks.
const fallbackSource = `import { cre, Runner } from "@chainlink/cre-sdk";
import { z } from "zod";

const configSchema = z.object({
  schedule: z.string(),
  gasApiUrl: z.string(),
  maxGwei: z.number(),
});

type Config = z.infer<typeof configSchema>;

const checkGas = (runtime: cre.Runtime<Config>) => {
  const http = new cre.capabilities.HTTPClient();
  const response = http
    .sendRequest(runtime, { url: runtime.config.gasApiUrl, method: "GET" })
    .result();
  const gwei = Number(JSON.parse(response.body).gwei);
  if (gwei > runtime.config.maxGwei) {
    runtime.log("gas " + gwei + " above " + runtime.config.maxGwei);
  }
  return { gwei: gwei, elevated: gwei > runtime.config.maxGwei };
};

const initWorkflow = (config: Config) => {
  const cron = new cre.capabilities.CronCapability();
  return [cre.handler(cron.trigger({ schedule: config.schedule }), checkGas)];
};

export async function main() {
  const runner = await Runner.newRunner<Config>({ configSchema });
  await runner.run(initWorkflow);
}
`

const fallbackConfig = `{
  "schedule": "*/10 * * * *",
  "gasApiUrl": "https://api.blocknative.example/gasprices",
  "maxGwei": 60
}`

// fallbackContract is the structured codegen reply served for models with
// no fixture.
var fallbackContract = mustFallbackContract()

func mustFallbackContract() string {
	b, err := json.MarshalIndent(map[string]string{
		"reasoning":   "Cron-triggered watcher: fetch the gas endpoint on the configured schedule and compare the reading against the gwei ceiling.",
		"code":        fallbackSource,
		"config":      fallbackConfig,
		"selfReview":  "Cron trigger wired through cre.handler, configuration read from runtime.config, capability calls resolved synchronously, main exported.",
		"explanation": "Checks the current gas price on a schedule and logs when it rises above the configured ceiling.",
	}, "", "  ")
	if err != nil {
		panic(fmt.Sprintf("marshal fallback contract: %v", err))
	}
	return string(b)
}
