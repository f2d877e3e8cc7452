package templates

import "github.com/chainweave/forge/intent"

// catalog is the fixed template set. Sources follow the runner layout the
// validator enforces: whitelisted imports, a top-level zod configSchema,
// synchronous handler callbacks and an exported main.
var catalog = []*Template{
	{
		ID:           1,
		Name:         "Price Threshold Alert",
		Category:     "monitoring",
		TriggerType:  intent.TriggerCron,
		Keywords:     []string{"price", "alert", "check", "monitor", "threshold", "drops", "below", "every"},
		Capabilities: []string{"price-feed", "notify"},
		Summary:      "Fetches a token price on a schedule and raises an alert when it crosses a configured threshold.",
		Source: `import { cre, Runner } from "@chainlink/cre-sdk";
import { z } from "zod";

const configSchema = z.object({
  schedule: z.string(),
  priceFeedUrl: z.string(),
  threshold: z.number(),
});

type Config = z.infer<typeof configSchema>;

const checkPrice = (runtime: cre.Runtime<Config>) => {
  const http = new cre.capabilities.HTTPClient();
  const response = http
    .sendRequest(runtime, { url: runtime.config.priceFeedUrl, method: "GET" })
    .result();
  const price = Number(JSON.parse(response.body).price);
  const triggered = price < runtime.config.threshold;
  if (triggered) {
    runtime.log("price " + price + " dropped below " + runtime.config.threshold);
  }
  return { price: price, triggered: triggered };
};

const initWorkflow = (config: Config) => {
  const cron = new cre.capabilities.CronCapability();
  return [cre.handler(cron.trigger({ schedule: config.schedule }), checkPrice)];
};

export async function main() {
  const runner = await Runner.newRunner<Config>({ configSchema });
  await runner.run(initWorkflow);
}
`,
		DefaultConfig: map[string]any{
			"schedule":     "*/5 * * * *",
			"priceFeedUrl": "https://api.coingecko.com/api/v3/simple/price?ids=ethereum&vs_currencies=usd",
			"threshold":    3000,
		},
		Siblings: [2]int{5, 7},
	},
	{
		ID:           2,
		Name:         "Portfolio Balance Tracker",
		Category:     "portfolio",
		TriggerType:  intent.TriggerCron,
		Keywords:     []string{"wallet", "balance", "portfolio", "holdings", "track", "daily"},
		Capabilities: []string{"wallet-balance", "onchain-write"},
		Summary:      "Reads a wallet balance on a schedule and records the snapshot onchain.",
		Source: `import { cre, Runner } from "@chainlink/cre-sdk";
import { formatUnits } from "viem";
import { z } from "zod";

const configSchema = z.object({
  schedule: z.string(),
  chainSelector: z.string(),
  walletAddress: z.string(),
});

type Config = z.infer<typeof configSchema>;

const snapshotBalance = (runtime: cre.Runtime<Config>) => {
  const evm = new cre.capabilities.EVMClient({ chainSelector: runtime.config.chainSelector });
  const balance = evm.balanceAt(runtime, { address: runtime.config.walletAddress }).result();
  const readable = formatUnits(balance.value, 18);
  evm.writeReport(runtime, { receiver: runtime.config.walletAddress, report: readable }).result();
  return { balance: Number(readable), address: runtime.config.walletAddress };
};

const initWorkflow = (config: Config) => {
  const cron = new cre.capabilities.CronCapability();
  return [cre.handler(cron.trigger({ schedule: config.schedule }), snapshotBalance)];
};

export async function main() {
  const runner = await Runner.newRunner<Config>({ configSchema });
  await runner.run(initWorkflow);
}
`,
		DefaultConfig: map[string]any{
			"schedule":      "0 8 * * *",
			"chainSelector": "ethereum-mainnet",
			"walletAddress": "0x0000000000000000000000000000000000000000",
		},
		Siblings: [2]int{4, 1},
	},
	{
		ID:           3,
		Name:         "Webhook Data Bridge",
		Category:     "integration",
		TriggerType:  intent.TriggerHTTP,
		Keywords:     []string{"webhook", "endpoint", "forward", "bridge", "incoming", "request"},
		Capabilities: []string{"http-api", "http-post"},
		Summary:      "Accepts an incoming HTTP payload and forwards it to a configured downstream endpoint.",
		Source: `import { cre, Runner } from "@chainlink/cre-sdk";
import { z } from "zod";

const configSchema = z.object({
  targetUrl: z.string(),
});

type Config = z.infer<typeof configSchema>;

const forwardPayload = (runtime: cre.Runtime<Config>, payload: cre.HTTPPayload) => {
  const http = new cre.capabilities.HTTPClient();
  const response = http
    .sendRequest(runtime, {
      url: runtime.config.targetUrl,
      method: "POST",
      body: payload.input,
    })
    .result();
  return { forwarded: true, statusCode: response.statusCode };
};

const initWorkflow = (config: Config) => {
  const httpTrigger = new cre.capabilities.HTTPCapability();
  return [cre.handler(httpTrigger.trigger({}), forwardPayload)];
};

export async function main() {
  const runner = await Runner.newRunner<Config>({ configSchema });
  await runner.run(initWorkflow);
}
`,
		DefaultConfig: map[string]any{
			"targetUrl": "https://example.com/ingest",
		},
		Siblings: [2]int{8, 6},
	},
	{
		ID:           4,
		Name:         "Contract Event Monitor",
		Category:     "monitoring",
		TriggerType:  intent.TriggerEVMLog,
		Keywords:     []string{"event", "contract", "emitted", "watch", "transfer", "onchain"},
		Capabilities: []string{"onchain-events", "notify"},
		Summary:      "Watches a contract for a log event and reports each occurrence.",
		Source: `import { cre, Runner } from "@chainlink/cre-sdk";
import { z } from "zod";

const configSchema = z.object({
  chainSelector: z.string(),
  contractAddress: z.string(),
  eventSignature: z.string(),
});

type Config = z.infer<typeof configSchema>;

const onLogEvent = (runtime: cre.Runtime<Config>, log: cre.EVMLog) => {
  runtime.log("observed " + runtime.config.eventSignature + " at block " + log.blockNumber);
  return { blockNumber: log.blockNumber, txHash: log.transactionHash };
};

const initWorkflow = (config: Config) => {
  const evm = new cre.capabilities.EVMClient({ chainSelector: config.chainSelector });
  return [
    cre.handler(
      evm.logTrigger({ address: config.contractAddress, event: config.eventSignature }),
      onLogEvent,
    ),
  ];
};

export async function main() {
  const runner = await Runner.newRunner<Config>({ configSchema });
  await runner.run(initWorkflow);
}
`,
		DefaultConfig: map[string]any{
			"chainSelector":   "ethereum-mainnet",
			"contractAddress": "0x0000000000000000000000000000000000000000",
			"eventSignature":  "Transfer(address,address,uint256)",
		},
		Siblings: [2]int{2, 1},
	},
	{
		ID:           5,
		Name:         "DeFi Yield Monitor",
		Category:     "defi",
		TriggerType:  intent.TriggerCron,
		Keywords:     []string{"defi", "yield", "liquidity", "lending", "pool", "rates", "monitor"},
		Capabilities: []string{"defi-api", "notify"},
		Summary:      "Polls a pool's yield on a schedule and alerts when it falls under a minimum APY.",
		Source: `import { cre, Runner } from "@chainlink/cre-sdk";
import { z } from "zod";

const configSchema = z.object({
  schedule: z.string(),
  poolUrl: z.string(),
  minApy: z.number(),
});

type Config = z.infer<typeof configSchema>;

const checkYield = (runtime: cre.Runtime<Config>) => {
  const http = new cre.capabilities.HTTPClient();
  const response = http
    .sendRequest(runtime, { url: runtime.config.poolUrl, method: "GET" })
    .result();
  const apy = Number(JSON.parse(response.body).apy);
  if (apy < runtime.config.minApy) {
    runtime.log("apy " + apy + " fell under " + runtime.config.minApy);
  }
  return { apy: apy, belowMinimum: apy < runtime.config.minApy };
};

const initWorkflow = (config: Config) => {
  const cron = new cre.capabilities.CronCapability();
  return [cre.handler(cron.trigger({ schedule: config.schedule }), checkYield)];
};

export async function main() {
  const runner = await Runner.newRunner<Config>({ configSchema });
  await runner.run(initWorkflow);
}
`,
		DefaultConfig: map[string]any{
			"schedule": "0 * * * *",
			"poolUrl":  "https://yields.llama.fi/pool/example",
			"minApy":   5,
		},
		Siblings: [2]int{1, 2},
	},
	{
		ID:           6,
		Name:         "News Digest",
		Category:     "content",
		TriggerType:  intent.TriggerCron,
		Keywords:     []string{"news", "headlines", "digest", "breaking", "summary", "daily"},
		Capabilities: []string{"news-api", "notify"},
		Summary:      "Collects headlines for configured topics on a schedule and emits a digest.",
		Source: `import { cre, Runner } from "@chainlink/cre-sdk";
import { z } from "zod";

const configSchema = z.object({
  schedule: z.string(),
  newsApiUrl: z.string(),
  topic: z.string(),
});

type Config = z.infer<typeof configSchema>;

const buildDigest = (runtime: cre.Runtime<Config>) => {
  const http = new cre.capabilities.HTTPClient();
  const response = http
    .sendRequest(runtime, {
      url: runtime.config.newsApiUrl + "?topic=" + runtime.config.topic,
      method: "GET",
    })
    .result();
  const headlines = JSON.parse(response.body).headlines;
  runtime.log("collected " + headlines.length + " headlines for " + runtime.config.topic);
  return { topic: runtime.config.topic, count: headlines.length };
};

const initWorkflow = (config: Config) => {
  const cron = new cre.capabilities.CronCapability();
  return [cre.handler(cron.trigger({ schedule: config.schedule }), buildDigest)];
};

export async function main() {
  const runner = await Runner.newRunner<Config>({ configSchema });
  await runner.run(initWorkflow);
}
`,
		DefaultConfig: map[string]any{
			"schedule":   "0 7 * * *",
			"newsApiUrl": "https://newsapi.org/v2/top-headlines",
			"topic":      "crypto",
		},
		Siblings: [2]int{7, 8},
	},
	{
		ID:           7,
		Name:         "Weather Alert",
		Category:     "monitoring",
		TriggerType:  intent.TriggerCron,
		Keywords:     []string{"weather", "temperature", "forecast", "rain", "alert", "city"},
		Capabilities: []string{"weather-api", "notify"},
		Summary:      "Checks the forecast for a city on a schedule and alerts outside the configured range.",
		Source: `import { cre, Runner } from "@chainlink/cre-sdk";
import { z } from "zod";

const configSchema = z.object({
  schedule: z.string(),
  weatherApiUrl: z.string(),
  city: z.string(),
  maxTemperature: z.number(),
});

type Config = z.infer<typeof configSchema>;

const checkForecast = (runtime: cre.Runtime<Config>) => {
  const http = new cre.capabilities.HTTPClient();
  const response = http
    .sendRequest(runtime, {
      url: runtime.config.weatherApiUrl + "?q=" + runtime.config.city,
      method: "GET",
    })
    .result();
  const temperature = Number(JSON.parse(response.body).main.temp);
  if (temperature > runtime.config.maxTemperature) {
    runtime.log(runtime.config.city + " at " + temperature + " exceeds the configured maximum");
  }
  return { city: runtime.config.city, temperature: temperature };
};

const initWorkflow = (config: Config) => {
  const cron = new cre.capabilities.CronCapability();
  return [cre.handler(cron.trigger({ schedule: config.schedule }), checkForecast)];
};

export async function main() {
  const runner = await Runner.newRunner<Config>({ configSchema });
  await runner.run(initWorkflow);
}
`,
		DefaultConfig: map[string]any{
			"schedule":       "0 6 * * *",
			"weatherApiUrl":  "https://api.openweathermap.org/data/2.5/weather",
			"city":           "Lisbon",
			"maxTemperature": 35,
		},
		Siblings: [2]int{1, 6},
	},
	{
		ID:           8,
		Name:         "Sports Score Tracker",
		Category:     "content",
		TriggerType:  intent.TriggerCron,
		Keywords:     []string{"sports", "score", "game", "results", "team", "league"},
		Capabilities: []string{"sports-api", "http-post"},
		Summary:      "Fetches a team's latest results on a schedule and posts them to a webhook.",
		Source: `import { cre, Runner } from "@chainlink/cre-sdk";
import { z } from "zod";

const configSchema = z.object({
  schedule: z.string(),
  scoresApiUrl: z.string(),
  team: z.string(),
  webhookUrl: z.string(),
});

type Config = z.infer<typeof configSchema>;

const relayScores = (runtime: cre.Runtime<Config>) => {
  const http = new cre.capabilities.HTTPClient();
  const scores = http
    .sendRequest(runtime, {
      url: runtime.config.scoresApiUrl + "?team=" + runtime.config.team,
      method: "GET",
    })
    .result();
  const posted = http
    .sendRequest(runtime, {
      url: runtime.config.webhookUrl,
      method: "POST",
      body: scores.body,
    })
    .result();
  return { team: runtime.config.team, delivered: posted.statusCode === 200 };
};

const initWorkflow = (config: Config) => {
  const cron = new cre.capabilities.CronCapability();
  return [cre.handler(cron.trigger({ schedule: config.schedule }), relayScores)];
};

export async function main() {
  const runner = await Runner.newRunner<Config>({ configSchema });
  await runner.run(initWorkflow);
}
`,
		DefaultConfig: map[string]any{
			"schedule":     "*/30 * * * *",
			"scoresApiUrl": "https://api.sportsdata.example/v1/results",
			"team":         "Arsenal",
			"webhookUrl":   "https://example.com/scores",
		},
		Siblings: [2]int{6, 3},
	},
}
