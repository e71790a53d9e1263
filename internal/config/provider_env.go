package config

import "os"

// ProviderForEnv picks the secret provider for the running process. Local
// runs take secrets straight from the environment or .env and get none;
// everything else resolves pointers through SSM in AWS_REGION.
func ProviderForEnv() SecretProvider {
	return providerFor(os.Getenv("APP_ENV"), os.Getenv("AWS_REGION"))
}

func providerFor(appEnv, region string) SecretProvider {
	if appEnv == localEnv {
		return nil
	}
	return NewSSMProvider(region)
}
