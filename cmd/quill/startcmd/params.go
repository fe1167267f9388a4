/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillpub/quill/internal/pkg/cmdutil"
	apspi "github.com/quillpub/quill/pkg/activitypub/service/spi"
)

const (
	defaultPageSize                = 30
	defaultNodeInfoRefreshInterval = 15 * time.Second
	defaultServerIdleTimeout       = 30 * time.Second
	defaultServerReadHeaderTimeout = 10 * time.Second

	commonEnvVarUsageText = "Alternatively, this can be set with the following environment variable: "

	hostURLFlagName      = "host-url"
	hostURLFlagShorthand = "u"
	hostURLFlagUsage     = "Address to bind the HTTP server to. Format: HostName:Port. " +
		commonEnvVarUsageText + hostURLEnvKey
	hostURLEnvKey = "QUILL_HOST_URL"

	externalEndpointFlagName      = "external-endpoint"
	externalEndpointFlagShorthand = "e"
	externalEndpointFlagUsage     = "External endpoint that clients and other servers use to reach this server." +
		" This endpoint is used to mint the IDs of actors, activities and objects and" +
		" must be resolvable by other servers. Format: scheme://HostName[:Port]. " +
		commonEnvVarUsageText + externalEndpointEnvKey
	externalEndpointEnvKey = "QUILL_EXTERNAL_ENDPOINT"

	tlsCertificateFlagName      = "tls-certificate"
	tlsCertificateFlagShorthand = "y"
	tlsCertificateFlagUsage     = "TLS certificate for the Quill server. " + commonEnvVarUsageText + tlsCertificateEnvKey
	tlsCertificateEnvKey        = "QUILL_TLS_CERTIFICATE"

	tlsKeyFlagName      = "tls-key"
	tlsKeyFlagShorthand = "x"
	tlsKeyFlagUsage     = "TLS key for the Quill server. " + commonEnvVarUsageText + tlsKeyEnvKey
	tlsKeyEnvKey        = "QUILL_TLS_KEY"

	tlsSystemCertPoolFlagName  = "tls-systemcertpool"
	tlsSystemCertPoolEnvKey    = "QUILL_TLS_SYSTEMCERTPOOL"
	tlsSystemCertPoolFlagUsage = "Use the system certificate pool when verifying the certificates of" +
		" other servers. Possible values [true] [false]. Defaults to false. " +
		commonEnvVarUsageText + tlsSystemCertPoolEnvKey

	tlsCACertsFlagName  = "tls-cacerts"
	tlsCACertsEnvKey    = "QUILL_TLS_CACERTS"
	tlsCACertsFlagUsage = "Comma-separated list of CA cert files that are trusted when verifying the" +
		" certificates of other servers. " + commonEnvVarUsageText + tlsCACertsEnvKey

	databaseTypeFlagName      = "database-type"
	databaseTypeFlagShorthand = "t"
	databaseTypeFlagUsage     = "The type of database to use for activities, objects and actors. " +
		"Supported options: mem, sqlite. " + commonEnvVarUsageText + databaseTypeEnvKey
	databaseTypeEnvKey = "QUILL_DATABASE_TYPE"

	databaseURLFlagName      = "database-url"
	databaseURLFlagShorthand = "v"
	databaseURLFlagUsage     = "The path of the database file. Not needed if using mem. " +
		commonEnvVarUsageText + databaseURLEnvKey
	databaseURLEnvKey = "QUILL_DATABASE_URL"

	usersFlagName  = "users"
	usersEnvKey    = "QUILL_USERS"
	usersFlagUsage = "The local users to provision, each in the format nick=token, where token is the" +
		" bearer token that authorizes the user to post to their outbox. " +
		commonEnvVarUsageText + usersEnvKey

	pageSizeFlagName  = "page-size"
	pageSizeEnvKey    = "QUILL_PAGE_SIZE"
	pageSizeFlagUsage = "The maximum number of items per collection page. " +
		commonEnvVarUsageText + pageSizeEnvKey

	maxDeliveryDepthFlagName  = "max-delivery-depth"
	maxDeliveryDepthEnvKey    = "QUILL_MAX_DELIVERY_DEPTH"
	maxDeliveryDepthFlagUsage = "The maximum recursion depth when expanding recipient collections" +
		" during delivery. Zero or less means unbounded. " + commonEnvVarUsageText + maxDeliveryDepthEnvKey

	maxForwardingDepthFlagName  = "max-forwarding-depth"
	maxForwardingDepthEnvKey    = "QUILL_MAX_FORWARDING_DEPTH"
	maxForwardingDepthFlagUsage = "The maximum depth of the object graph that is traversed when deciding" +
		" whether an inbound activity references a local object. Zero or less means unbounded. " +
		commonEnvVarUsageText + maxForwardingDepthEnvKey

	followPolicyFlagName  = "follow-policy"
	followPolicyEnvKey    = "QUILL_FOLLOW_POLICY"
	followPolicyFlagUsage = "What to do with incoming Follow requests. Supported options: " +
		"accept (reply with an Accept), reject (reply with a Reject), manual (record the request as pending). " +
		commonEnvVarUsageText + followPolicyEnvKey

	nodeInfoRefreshIntervalFlagName  = "nodeinfo-refresh-interval"
	nodeInfoRefreshIntervalEnvKey    = "QUILL_NODEINFO_REFRESH_INTERVAL"
	nodeInfoRefreshIntervalFlagUsage = "The interval at which NodeInfo usage statistics are refreshed." +
		" For example, 30s or 5m. " + commonEnvVarUsageText + nodeInfoRefreshIntervalEnvKey

	databaseTypeMemOption    = "mem"
	databaseTypeSQLiteOption = "sqlite"

	followPolicyAcceptOption = "accept"
	followPolicyRejectOption = "reject"
	followPolicyManualOption = "manual"
)

type userParams struct {
	nick  string
	token string
}

type dbParameters struct {
	databaseType string
	databaseURL  string
}

type quillParameters struct {
	hostURL                 string
	externalEndpoint        string
	tlsCertificate          string
	tlsKey                  string
	tlsSystemCertPool       bool
	tlsCACerts              []string
	dbParameters            *dbParameters
	users                   []*userParams
	pageSize                int
	maxDeliveryDepth        int
	maxForwardingDepth      int
	followPolicy            string
	nodeInfoRefreshInterval time.Duration
	logSpec                 string
}

//nolint:cyclop
func getQuillParameters(cmd *cobra.Command) (*quillParameters, error) {
	hostURL, err := cmdutil.GetUserSetVarFromString(cmd, hostURLFlagName, hostURLEnvKey, false)
	if err != nil {
		return nil, err
	}

	externalEndpoint, err := cmdutil.GetUserSetVarFromString(cmd, externalEndpointFlagName, externalEndpointEnvKey, true)
	if err != nil {
		return nil, err
	}

	if externalEndpoint == "" {
		externalEndpoint = "http://" + hostURL
	}

	tlsCertificate, err := cmdutil.GetUserSetVarFromString(cmd, tlsCertificateFlagName, tlsCertificateEnvKey, true)
	if err != nil {
		return nil, err
	}

	tlsKey, err := cmdutil.GetUserSetVarFromString(cmd, tlsKeyFlagName, tlsKeyEnvKey, true)
	if err != nil {
		return nil, err
	}

	tlsSystemCertPool, err := cmdutil.GetBool(cmd, tlsSystemCertPoolFlagName, tlsSystemCertPoolEnvKey, false)
	if err != nil {
		return nil, err
	}

	tlsCACerts := cmdutil.GetUserSetOptionalVarFromArrayString(cmd, tlsCACertsFlagName, tlsCACertsEnvKey)

	dbParams, err := getDBParameters(cmd)
	if err != nil {
		return nil, err
	}

	users, err := getUserParameters(cmd)
	if err != nil {
		return nil, err
	}

	pageSize, err := cmdutil.GetInt(cmd, pageSizeFlagName, pageSizeEnvKey, defaultPageSize)
	if err != nil {
		return nil, err
	}

	maxDeliveryDepth, err := cmdutil.GetInt(cmd, maxDeliveryDepthFlagName, maxDeliveryDepthEnvKey,
		apspi.DefaultMaxDeliveryDepth)
	if err != nil {
		return nil, err
	}

	maxForwardingDepth, err := cmdutil.GetInt(cmd, maxForwardingDepthFlagName, maxForwardingDepthEnvKey,
		apspi.DefaultMaxInboxForwardingDepth)
	if err != nil {
		return nil, err
	}

	// The flags document zero or less as unbounded; internally a negative depth
	// means unbounded.
	if maxDeliveryDepth <= 0 {
		maxDeliveryDepth = -1
	}

	if maxForwardingDepth <= 0 {
		maxForwardingDepth = -1
	}

	followPolicy := cmdutil.GetUserSetOptionalVarFromString(cmd, followPolicyFlagName, followPolicyEnvKey)
	if followPolicy == "" {
		followPolicy = followPolicyManualOption
	}

	switch followPolicy {
	case followPolicyAcceptOption, followPolicyRejectOption, followPolicyManualOption:
	default:
		return nil, fmt.Errorf("unsupported follow policy: %s", followPolicy)
	}

	nodeInfoRefreshInterval, err := cmdutil.GetDuration(cmd, nodeInfoRefreshIntervalFlagName,
		nodeInfoRefreshIntervalEnvKey, defaultNodeInfoRefreshInterval)
	if err != nil {
		return nil, err
	}

	logSpec := cmdutil.GetUserSetOptionalVarFromString(cmd, LogLevelFlagName, LogLevelEnvKey)

	return &quillParameters{
		hostURL:                 hostURL,
		externalEndpoint:        externalEndpoint,
		tlsCertificate:          tlsCertificate,
		tlsKey:                  tlsKey,
		tlsSystemCertPool:       tlsSystemCertPool,
		tlsCACerts:              tlsCACerts,
		dbParameters:            dbParams,
		users:                   users,
		pageSize:                pageSize,
		maxDeliveryDepth:        maxDeliveryDepth,
		maxForwardingDepth:      maxForwardingDepth,
		followPolicy:            followPolicy,
		nodeInfoRefreshInterval: nodeInfoRefreshInterval,
		logSpec:                 logSpec,
	}, nil
}

func getDBParameters(cmd *cobra.Command) (*dbParameters, error) {
	databaseType := cmdutil.GetUserSetOptionalVarFromString(cmd, databaseTypeFlagName, databaseTypeEnvKey)
	if databaseType == "" {
		databaseType = databaseTypeMemOption
	}

	databaseURL := cmdutil.GetUserSetOptionalVarFromString(cmd, databaseURLFlagName, databaseURLEnvKey)

	switch databaseType {
	case databaseTypeMemOption:
	case databaseTypeSQLiteOption:
		if databaseURL == "" {
			return nil, fmt.Errorf("%s is required for database type %s",
				databaseURLFlagName, databaseTypeSQLiteOption)
		}
	default:
		return nil, fmt.Errorf("unsupported database type: %s", databaseType)
	}

	return &dbParameters{
		databaseType: databaseType,
		databaseURL:  databaseURL,
	}, nil
}

func getUserParameters(cmd *cobra.Command) ([]*userParams, error) {
	userValues, err := cmdutil.GetUserSetVarFromArrayString(cmd, usersFlagName, usersEnvKey, false)
	if err != nil {
		return nil, err
	}

	users := make([]*userParams, len(userValues))

	for i, value := range userValues {
		nick, token, ok := strings.Cut(value, "=")
		if !ok || nick == "" || token == "" {
			return nil, fmt.Errorf("invalid user [%s]: expecting format nick=token", value)
		}

		users[i] = &userParams{nick: nick, token: token}
	}

	return users, nil
}

func createFlags(startCmd *cobra.Command) {
	startCmd.Flags().StringP(hostURLFlagName, hostURLFlagShorthand, "", hostURLFlagUsage)
	startCmd.Flags().StringP(externalEndpointFlagName, externalEndpointFlagShorthand, "", externalEndpointFlagUsage)
	startCmd.Flags().StringP(tlsCertificateFlagName, tlsCertificateFlagShorthand, "", tlsCertificateFlagUsage)
	startCmd.Flags().StringP(tlsKeyFlagName, tlsKeyFlagShorthand, "", tlsKeyFlagUsage)
	startCmd.Flags().StringP(tlsSystemCertPoolFlagName, "", "", tlsSystemCertPoolFlagUsage)
	startCmd.Flags().StringArrayP(tlsCACertsFlagName, "", []string{}, tlsCACertsFlagUsage)
	startCmd.Flags().StringP(databaseTypeFlagName, databaseTypeFlagShorthand, "", databaseTypeFlagUsage)
	startCmd.Flags().StringP(databaseURLFlagName, databaseURLFlagShorthand, "", databaseURLFlagUsage)
	startCmd.Flags().StringArrayP(usersFlagName, "", []string{}, usersFlagUsage)
	startCmd.Flags().StringP(pageSizeFlagName, "", "", pageSizeFlagUsage)
	startCmd.Flags().StringP(maxDeliveryDepthFlagName, "", "", maxDeliveryDepthFlagUsage)
	startCmd.Flags().StringP(maxForwardingDepthFlagName, "", "", maxForwardingDepthFlagUsage)
	startCmd.Flags().StringP(followPolicyFlagName, "", "", followPolicyFlagUsage)
	startCmd.Flags().StringP(nodeInfoRefreshIntervalFlagName, "", "", nodeInfoRefreshIntervalFlagUsage)
	startCmd.Flags().StringP(LogLevelFlagName, LogLevelFlagShorthand, "", LogLevelFlagUsage)
}
